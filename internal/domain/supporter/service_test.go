package supporter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/person"
	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/db"
	"github.com/carelink/carelink/pkg/pagination"
)

// -- Mock Repository --

type mockSupporterRepo struct {
	store       map[uuid.UUID]*Supporter
	createErr   error
	deleteErr   error
	storageFail error
}

func newMockSupporterRepo() *mockSupporterRepo {
	return &mockSupporterRepo{store: make(map[uuid.UUID]*Supporter)}
}

func (m *mockSupporterRepo) Create(_ context.Context, s *Supporter) error {
	if m.createErr != nil {
		return m.createErr
	}
	s.ID = uuid.New()
	s.Version = 0
	s.Role = person.RoleSupporter
	cp := *s
	m.store[s.ID] = &cp
	return nil
}

func (m *mockSupporterRepo) Update(_ context.Context, s *Supporter) (bool, error) {
	existing, ok := m.store[s.ID]
	if !ok || existing.Version != s.Version {
		return false, nil
	}
	if s.Credential == "" {
		s.Credential = existing.Credential
	}
	s.Version++
	cp := *s
	m.store[s.ID] = &cp
	return true, nil
}

func (m *mockSupporterRepo) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	if m.deleteErr != nil {
		return false, m.deleteErr
	}
	_, ok := m.store[id]
	delete(m.store, id)
	return ok, nil
}

func (m *mockSupporterRepo) GetByID(_ context.Context, id uuid.UUID) (*Supporter, error) {
	if m.storageFail != nil {
		return nil, m.storageFail
	}
	s, ok := m.store[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *mockSupporterRepo) GetByNationalID(_ context.Context, nationalID string) (*Supporter, error) {
	for _, s := range m.store {
		if s.NationalID == nationalID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockSupporterRepo) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := m.store[id]
	return ok, nil
}

func (m *mockSupporterRepo) List(_ context.Context, _ pagination.Params) ([]*Supporter, int, error) {
	var out []*Supporter
	for _, s := range m.store {
		out = append(out, s)
	}
	return out, len(out), nil
}

func (m *mockSupporterRepo) ListByJobTitle(_ context.Context, jobTitle string, _ pagination.Params) ([]*Supporter, int, error) {
	var out []*Supporter
	for _, s := range m.store {
		if s.JobTitle == jobTitle {
			out = append(out, s)
		}
	}
	return out, len(out), nil
}

func (m *mockSupporterRepo) ListJobTitles(_ context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, s := range m.store {
		if !seen[s.JobTitle] {
			seen[s.JobTitle] = true
			out = append(out, s.JobTitle)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *mockSupporterRepo) Count(_ context.Context) (int, error) {
	if m.storageFail != nil {
		return 0, m.storageFail
	}
	return len(m.store), nil
}

// mockPersons answers the person-level queries from the supporter store.
type mockPersons struct {
	person.PersonRepository
	repo *mockSupporterRepo
}

func (m mockPersons) ExistsNationalIDForOther(_ context.Context, nationalID string, excludeID uuid.UUID) (bool, error) {
	for _, s := range m.repo.store {
		if s.NationalID == nationalID && s.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m mockPersons) CurrentVersion(_ context.Context, id uuid.UUID) (int64, bool, error) {
	s, ok := m.repo.store[id]
	if !ok {
		return 0, false, nil
	}
	return s.Version, true, nil
}

type mockGuard struct {
	linked map[uuid.UUID]int
}

func (g *mockGuard) CanDeleteSupporter(_ context.Context, id uuid.UUID) (bool, error) {
	return g.linked[id] == 0, nil
}

func (g *mockGuard) LinkedPatientCount(_ context.Context, id uuid.UUID) (int, error) {
	return g.linked[id], nil
}

type prefixHasher struct{}

func (prefixHasher) Hash(plain string) (string, error) { return "hashed:" + plain, nil }
func (prefixHasher) Verify(hash, plain string) bool    { return hash == "hashed:"+plain }

func newTestService() (*Service, *mockSupporterRepo, *mockGuard) {
	repo := newMockSupporterRepo()
	guard := &mockGuard{linked: make(map[uuid.UUID]int)}
	return NewService(repo, mockPersons{repo: repo}, guard, prefixHasher{}, zerolog.Nop()), repo, guard
}

func newSupporter(nationalID string) *Supporter {
	return &Supporter{
		Person: person.Person{
			FullName:   "Maria Souza",
			Age:        42,
			NationalID: nationalID,
			Phone:      "11999990000",
			Credential: "secret1",
		},
		JobTitle:     "Nurse",
		PracticeArea: "Geriatrics",
	}
}

// -- Service Tests --

func TestService_Register(t *testing.T) {
	svc, repo, _ := newTestService()
	sup := newSupporter("123")

	if err := svc.Register(context.Background(), sup); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sup.ID == uuid.Nil {
		t.Error("expected ID to be assigned")
	}
	stored := repo.store[sup.ID]
	if stored.Version != 0 || stored.Role != person.RoleSupporter {
		t.Errorf("expected version 0 and supporter role, got %d/%s", stored.Version, stored.Role)
	}
	if stored.Credential != "hashed:secret1" {
		t.Errorf("expected hashed credential, got %s", stored.Credential)
	}
}

func TestService_Register_DuplicateNationalID(t *testing.T) {
	svc, repo, _ := newTestService()
	if err := svc.Register(context.Background(), newSupporter("123")); err != nil {
		t.Fatalf("first register: %v", err)
	}

	err := svc.Register(context.Background(), newSupporter("123"))
	if !apperr.IsValidation(err) || err.Error() != "duplicate identifier" {
		t.Fatalf("expected duplicate identifier, got %v", err)
	}
	if len(repo.store) != 1 {
		t.Errorf("expected exactly one stored supporter, got %d", len(repo.store))
	}
}

func TestService_Register_ConcurrentDuplicate(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.createErr = fmt.Errorf("insert person: %w", db.ErrUniqueViolation)

	err := svc.Register(context.Background(), newSupporter("123"))
	if !apperr.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestService_Register_RoleInsertFailure(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.createErr = errors.New("insert supporter: connection reset")

	err := svc.Register(context.Background(), newSupporter("123"))
	if !apperr.IsStorage(err) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if len(repo.store) != 0 {
		t.Error("expected nothing persisted")
	}
}

func TestService_Register_InvalidAge(t *testing.T) {
	svc, _, _ := newTestService()
	sup := newSupporter("123")
	sup.Age = 151
	if err := svc.Register(context.Background(), sup); !apperr.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestService_Update(t *testing.T) {
	svc, repo, _ := newTestService()
	sup := newSupporter("123")
	if err := svc.Register(context.Background(), sup); err != nil {
		t.Fatalf("register: %v", err)
	}

	edit := *repo.store[sup.ID]
	edit.JobTitle = "Social Worker"
	edit.Credential = ""
	if err := svc.Update(context.Background(), &edit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if edit.Version != 1 {
		t.Errorf("expected version 1, got %d", edit.Version)
	}
	stored := repo.store[sup.ID]
	if stored.JobTitle != "Social Worker" {
		t.Errorf("expected job title updated, got %s", stored.JobTitle)
	}
	if stored.Credential != "hashed:secret1" {
		t.Errorf("expected stored credential kept, got %s", stored.Credential)
	}
}

func TestService_Update_ConcurrentEditsConflict(t *testing.T) {
	svc, repo, _ := newTestService()
	sup := newSupporter("123")
	if err := svc.Register(context.Background(), sup); err != nil {
		t.Fatalf("register: %v", err)
	}

	first := *repo.store[sup.ID]
	second := *repo.store[sup.ID]
	first.PracticeArea = "Pediatrics"
	second.PracticeArea = "Oncology"

	if err := svc.Update(context.Background(), &first); err != nil {
		t.Fatalf("first update: %v", err)
	}
	err := svc.Update(context.Background(), &second)
	var ce *apperr.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if ce.Kind != apperr.KindSupporter || ce.ID != sup.ID || ce.Expected != 0 || ce.Actual != 1 {
		t.Errorf("unexpected conflict: %+v", ce)
	}
	if repo.store[sup.ID].PracticeArea != "Pediatrics" {
		t.Error("losing update must not be applied")
	}
}

func TestService_Update_NotFound(t *testing.T) {
	svc, _, _ := newTestService()
	sup := newSupporter("123")
	sup.ID = uuid.New()
	if err := svc.Update(context.Background(), sup); !apperr.IsNotFound(err) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestService_Update_NationalIDTakenByOther(t *testing.T) {
	svc, repo, _ := newTestService()
	a, b := newSupporter("111"), newSupporter("222")
	_ = svc.Register(context.Background(), a)
	_ = svc.Register(context.Background(), b)

	edit := *repo.store[b.ID]
	edit.NationalID = "111"
	if err := svc.Update(context.Background(), &edit); !apperr.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestService_Delete(t *testing.T) {
	svc, repo, guard := newTestService()
	sup := newSupporter("123")
	_ = svc.Register(context.Background(), sup)

	guard.linked[sup.ID] = 1
	err := svc.Delete(context.Background(), sup.ID)
	if !apperr.IsValidation(err) || err.Error() != "supporter has linked patients" {
		t.Fatalf("expected linked patients error, got %v", err)
	}
	if _, ok := repo.store[sup.ID]; !ok {
		t.Fatal("supporter must remain after a rejected delete")
	}

	guard.linked[sup.ID] = 0
	if err := svc.Delete(context.Background(), sup.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := repo.store[sup.ID]; ok {
		t.Error("expected supporter deleted")
	}
}

func TestService_Delete_LinkRace(t *testing.T) {
	svc, repo, _ := newTestService()
	sup := newSupporter("123")
	_ = svc.Register(context.Background(), sup)
	repo.deleteErr = fmt.Errorf("delete supporter: %w", db.ErrForeignKeyViolation)

	err := svc.Delete(context.Background(), sup.ID)
	if !apperr.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestService_Delete_NotFound(t *testing.T) {
	svc, _, _ := newTestService()
	if err := svc.Delete(context.Background(), uuid.New()); !apperr.IsNotFound(err) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestService_CountLinkedPatients(t *testing.T) {
	svc, _, guard := newTestService()
	sup := newSupporter("123")
	_ = svc.Register(context.Background(), sup)
	guard.linked[sup.ID] = 3

	n, err := svc.CountLinkedPatients(context.Background(), sup.ID)
	if err != nil || n != 3 {
		t.Errorf("expected 3, got %d, %v", n, err)
	}
	if _, err := svc.CountLinkedPatients(context.Background(), uuid.New()); !apperr.IsNotFound(err) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestService_ListJobTitles(t *testing.T) {
	svc, _, _ := newTestService()
	for i, title := range []string{"Nurse", "Caregiver", "Nurse"} {
		s := newSupporter(fmt.Sprintf("id-%d", i))
		s.JobTitle = title
		if err := svc.Register(context.Background(), s); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	titles, err := svc.ListJobTitles(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(titles) != 2 || titles[0] != "Caregiver" || titles[1] != "Nurse" {
		t.Errorf("unexpected titles: %v", titles)
	}

	_, total, _ := svc.ListByJobTitle(context.Background(), "Nurse", pagination.Params{})
	if total != 2 {
		t.Errorf("expected 2 nurses, got %d", total)
	}
}

func TestService_Count_StorageError(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.storageFail = errors.New("pool closed")
	if _, err := svc.Count(context.Background()); !apperr.IsStorage(err) {
		t.Errorf("expected StorageError, got %v", err)
	}
}
