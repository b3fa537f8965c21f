package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type memoryKeyring struct {
	entries map[string]string
	gets    int
}

func (k *memoryKeyring) Get(service, user string) (string, error) {
	k.gets++
	return k.entries[service+"/"+user], nil
}

func (k *memoryKeyring) Set(service, user, password string) error {
	k.entries[service+"/"+user] = password
	return nil
}

func (k *memoryKeyring) Delete(service, user string) error {
	delete(k.entries, service+"/"+user)
	return nil
}

func TestPlainValuesPassThrough(t *testing.T) {
	t.Parallel()

	o := NewOracle(Options{Keyring: &memoryKeyring{}})
	got, err := o.Password(context.Background(), "svc", "me", "hunter2")
	if err != nil || got != "hunter2" {
		t.Fatalf("unexpected password: %q %v", got, err)
	}
}

func TestKeyringLookupIsCached(t *testing.T) {
	t.Parallel()

	kr := &memoryKeyring{entries: map[string]string{"linear://host/me": "stored"}}
	o := NewOracle(Options{Keyring: kr})

	for i := 0; i < 2; i++ {
		got, err := o.Password(context.Background(), "linear://host", "me", UseKeyring)
		if err != nil || got != "stored" {
			t.Fatalf("unexpected password: %q %v", got, err)
		}
	}
	if kr.gets != 1 {
		t.Fatalf("expected a single keyring read, got %d", kr.gets)
	}
}

func TestKeyringLearningMode(t *testing.T) {
	t.Parallel()

	kr := &memoryKeyring{entries: map[string]string{}}
	var prompts []string
	o := NewOracle(Options{
		Interactive: true,
		Keyring:     kr,
		Prompt: func(prompt string) (string, error) {
			prompts = append(prompts, prompt)
			return "typed", nil
		},
	})

	got, err := o.Password(context.Background(), "todoist://", "work", UseKeyring)
	if err != nil || got != "typed" {
		t.Fatalf("unexpected password: %q %v", got, err)
	}
	if kr.entries["todoist:///work"] != "typed" {
		t.Fatalf("password not learned: %v", kr.entries)
	}
	if len(prompts) != 1 || prompts[0] != "todoist:// password: " {
		t.Fatalf("unexpected prompts: %q", prompts)
	}
}

func TestMissingPasswordWhenNotInteractive(t *testing.T) {
	t.Parallel()

	o := NewOracle(Options{Keyring: &memoryKeyring{entries: map[string]string{}}})
	for _, oracle := range []string{UseKeyring, AskPassword} {
		if _, err := o.Password(context.Background(), "svc", "me", oracle); !errors.Is(err, ErrMissingPassword) {
			t.Fatalf("expected ErrMissingPassword for %s, got %v", oracle, err)
		}
	}
	if _, err := o.Password(context.Background(), "svc", "me", "@oracle:bogus"); err == nil {
		t.Fatalf("expected unknown oracle error")
	}
}

func TestEvalIsCachedPerCommand(t *testing.T) {
	t.Parallel()

	counter := filepath.Join(t.TempDir(), "count")
	command := "echo run >> " + counter + "; printf 'first\\nsecond\\n'"
	o := NewOracle(Options{Keyring: &memoryKeyring{}})

	for i := 0; i < 3; i++ {
		got, err := o.Password(context.Background(), "a", "b", EvalPrefix+command)
		if err != nil || got != "first" {
			t.Fatalf("unexpected eval result: %q %v", got, err)
		}
	}

	raw, err := os.ReadFile(counter)
	if err != nil {
		t.Fatalf("read counter: %v", err)
	}
	if string(raw) != "run\n" {
		t.Fatalf("command ran more than once: %q", raw)
	}
}

func TestEvalFailure(t *testing.T) {
	t.Parallel()

	_, err := Eval(context.Background(), "echo nope >&2; exit 3")
	if err == nil {
		t.Fatalf("expected eval error")
	}
}
