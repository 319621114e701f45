package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	authkit "github.com/atlas-pt/authkit-go"
	"github.com/atlas-pt/authkit-go/session"
)

type memBackend struct {
	mu    sync.Mutex
	cred  authkit.Credential
	loads int
	saves int
	fail  error
}

func (b *memBackend) Load(ctx context.Context) (authkit.Credential, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loads++
	return b.cred, b.fail
}

func (b *memBackend) Save(ctx context.Context, cred authkit.Credential) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saves++
	if b.fail != nil {
		return b.fail
	}
	b.cred = cred
	return nil
}

func (b *memBackend) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	b.cred = authkit.Credential{}
	return nil
}

func TestLoadEmptyByDefault(t *testing.T) {
	s := session.New()

	cred, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cred.Empty() {
		t.Errorf("fresh session holds %+v, want empty pair", cred)
	}
}

func TestSaveThenLoad(t *testing.T) {
	s := session.New()
	ctx := context.Background()

	want := authkit.Credential{AccessToken: "at-1", RefreshToken: "rt-1"}
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Errorf("Load = %+v, want %+v", got, want)
	}
}

func TestClearRemovesBothTokens(t *testing.T) {
	s := session.New()
	ctx := context.Background()

	_ = s.Save(ctx, authkit.Credential{AccessToken: "at", RefreshToken: "rt"})
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	got, _ := s.Load(ctx)
	if !got.Empty() {
		t.Errorf("after Clear, Load = %+v, want empty", got)
	}
}

func TestBackendLazyFirstLoad(t *testing.T) {
	b := &memBackend{cred: authkit.Credential{AccessToken: "persisted", RefreshToken: "rt"}}
	s := session.New(session.WithBackend(b))
	ctx := context.Background()

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.AccessToken != "persisted" {
		t.Errorf("Load = %+v, want the persisted pair", got)
	}

	// Subsequent loads are served from memory.
	_, _ = s.Load(ctx)
	_, _ = s.Load(ctx)
	if b.loads != 1 {
		t.Errorf("backend Load called %d times, want 1", b.loads)
	}
}

func TestBackendWriteThrough(t *testing.T) {
	b := &memBackend{}
	s := session.New(session.WithBackend(b))
	ctx := context.Background()

	want := authkit.Credential{AccessToken: "at", RefreshToken: "rt"}
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if b.cred != want {
		t.Errorf("backend holds %+v, want %+v", b.cred, want)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if !b.cred.Empty() {
		t.Errorf("backend holds %+v after Clear, want empty", b.cred)
	}
}

func TestBackendLoadError(t *testing.T) {
	boom := errors.New("keychain locked")
	s := session.New(session.WithBackend(&memBackend{fail: boom}))

	_, err := s.Load(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("Load error = %v, want wrapped backend error", err)
	}
}

func TestConcurrentSaveLoad(t *testing.T) {
	s := session.New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = s.Save(ctx, authkit.Credential{
				AccessToken:  fmt.Sprintf("at-%d", n),
				RefreshToken: fmt.Sprintf("rt-%d", n),
			})
		}(i)
		go func() {
			defer wg.Done()
			cred, err := s.Load(ctx)
			if err != nil {
				t.Errorf("Load: %v", err)
				return
			}
			// A pair is always observed whole: both halves from the
			// same Save.
			if !cred.Empty() && cred.AccessToken[3:] != cred.RefreshToken[3:] {
				t.Errorf("torn pair observed: %+v", cred)
			}
		}()
	}
	wg.Wait()
}
