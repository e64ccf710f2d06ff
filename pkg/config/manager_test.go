package config

import (
	"fmt"
	"sync"
	"testing"
)

// mockSection is a test implementation of the Section interface
type mockSection struct {
	id          string
	data        map[string]interface{}
	validateErr error
	resets      int
}

func (m *mockSection) ID() string                                { return m.id }
func (m *mockSection) Title() string                             { return m.id }
func (m *mockSection) Description() string                       { return "" }
func (m *mockSection) Data() map[string]interface{}              { return m.data }
func (m *mockSection) SetData(data map[string]interface{}) error { m.data = data; return nil }
func (m *mockSection) Validate() error                           { return m.validateErr }
func (m *mockSection) Reset()                                    { m.data = nil; m.resets++ }

// memoryStore is an in-memory Store
type memoryStore struct {
	sections map[string]map[string]interface{}
	loadErr  error
	saveErr  error
	saves    int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sections: make(map[string]map[string]interface{})}
}

func (m *memoryStore) Load() error { return m.loadErr }

func (m *memoryStore) Save() error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	return nil
}

func (m *memoryStore) GetSection(id string) (map[string]interface{}, error) {
	return m.sections[id], nil
}

func (m *memoryStore) SetSection(id string, data map[string]interface{}) error {
	m.sections[id] = data
	return nil
}

func (m *memoryStore) GetAll() (map[string]map[string]interface{}, error) { return m.sections, nil }

func (m *memoryStore) SetAll(data map[string]map[string]interface{}) error {
	m.sections = data
	return nil
}

func TestManager_RegisterSection(t *testing.T) {
	manager := NewManager(newMemoryStore())

	for _, id := range []string{"container", "browser"} {
		if err := manager.RegisterSection(&mockSection{id: id}); err != nil {
			t.Fatalf("RegisterSection(%s) failed: %v", id, err)
		}
	}

	if err := manager.RegisterSection(&mockSection{id: "container"}); err == nil {
		t.Error("Expected error for duplicate registration")
	}

	sections := manager.GetSections()
	if len(sections) != 2 || sections[0].ID() != "container" || sections[1].ID() != "browser" {
		t.Errorf("Sections not in registration order: %v", sections)
	}

	if _, ok := manager.GetSection("missing"); ok {
		t.Error("GetSection should report missing sections")
	}
}

func TestManager_LoadAll(t *testing.T) {
	t.Run("applies stored data", func(t *testing.T) {
		store := newMemoryStore()
		store.sections["container"] = map[string]interface{}{"debounce": "1s"}

		manager := NewManager(store)
		loaded := &mockSection{id: "container"}
		untouched := &mockSection{id: "browser", data: map[string]interface{}{"headless": true}}
		manager.RegisterSection(loaded)
		manager.RegisterSection(untouched)

		if err := manager.LoadAll(); err != nil {
			t.Fatalf("LoadAll failed: %v", err)
		}
		if loaded.data["debounce"] != "1s" {
			t.Errorf("Section data not loaded: %v", loaded.data)
		}
		if untouched.data["headless"] != true {
			t.Error("Sections without stored data should keep their values")
		}
	})

	t.Run("reports store errors", func(t *testing.T) {
		store := newMemoryStore()
		store.loadErr = fmt.Errorf("disk on fire")

		if err := NewManager(store).LoadAll(); err == nil {
			t.Error("Expected error from store")
		}
	})
}

func TestManager_SaveAll(t *testing.T) {
	t.Run("writes every section", func(t *testing.T) {
		store := newMemoryStore()
		manager := NewManager(store)
		manager.RegisterSection(&mockSection{id: "a", data: map[string]interface{}{"k": 1}})
		manager.RegisterSection(&mockSection{id: "b", data: map[string]interface{}{"k": 2}})

		if err := manager.SaveAll(); err != nil {
			t.Fatalf("SaveAll failed: %v", err)
		}
		if store.sections["a"]["k"] != 1 || store.sections["b"]["k"] != 2 {
			t.Errorf("Sections not saved: %v", store.sections)
		}
		if store.saves != 1 {
			t.Errorf("Expected one save, got %d", store.saves)
		}
	})

	t.Run("validates before writing", func(t *testing.T) {
		store := newMemoryStore()
		manager := NewManager(store)
		manager.RegisterSection(&mockSection{id: "a", data: map[string]interface{}{"k": 1}})
		manager.RegisterSection(&mockSection{id: "b", validateErr: fmt.Errorf("bad")})

		if err := manager.SaveAll(); err == nil {
			t.Fatal("Expected validation error")
		}
		if len(store.sections) != 0 || store.saves != 0 {
			t.Error("Nothing should be written when validation fails")
		}
	})

	t.Run("reports store errors", func(t *testing.T) {
		store := newMemoryStore()
		store.saveErr = fmt.Errorf("read-only")
		manager := NewManager(store)
		manager.RegisterSection(&mockSection{id: "a"})

		if err := manager.SaveAll(); err == nil {
			t.Error("Expected error from store")
		}
	})
}

func TestManager_ResetAll(t *testing.T) {
	manager := NewManager(newMemoryStore())
	a := &mockSection{id: "a", data: map[string]interface{}{"k": 1}}
	b := &mockSection{id: "b"}
	manager.RegisterSection(a)
	manager.RegisterSection(b)

	manager.ResetAll()

	if a.resets != 1 || b.resets != 1 || a.data != nil {
		t.Error("Sections not reset")
	}
}

func TestManager_ConcurrentRegistration(t *testing.T) {
	manager := NewManager(newMemoryStore())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			manager.RegisterSection(&mockSection{id: fmt.Sprintf("section%d", i)})
			manager.GetSections()
		}(i)
	}
	wg.Wait()

	if n := len(manager.GetSections()); n != 10 {
		t.Errorf("Expected 10 sections, got %d", n)
	}
}
