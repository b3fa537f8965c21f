package secrets

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"

	"IssueSync/internal/service"
)

// Oracle references accepted in password options.
const (
	OraclePrefix = "@oracle:"
	UseKeyring   = "@oracle:use_keyring"
	AskPassword  = "@oracle:ask_password"
	EvalPrefix   = "@oracle:eval:"
)

// ErrMissingPassword is returned when no oracle could produce a password.
var ErrMissingPassword = errors.New("missing password")

// Keyring is the part of the system keyring the oracle needs.
type Keyring interface {
	Get(service, user string) (string, error)
	Set(service, user, password string) error
	Delete(service, user string) error
}

// SystemKeyring stores passwords in the OS keyring.
type SystemKeyring struct{}

func (SystemKeyring) Get(service, user string) (string, error) {
	pw, err := keyring.Get(service, user)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return pw, err
}

func (SystemKeyring) Set(service, user, password string) error {
	return keyring.Set(service, user, password)
}

func (SystemKeyring) Delete(service, user string) error {
	return keyring.Delete(service, user)
}

// Prompt reads a password from the terminal without echo.
func Prompt(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

// Options configures an Oracle.
type Options struct {
	Interactive bool
	Keyring     Keyring
	Prompt      func(prompt string) (string, error)
	Logger      *slog.Logger
}

// Oracle resolves @oracle password references for one run. Results are
// cached so each keyring entry, prompt or command is consulted once.
type Oracle struct {
	interactive bool
	keyring     Keyring
	prompt      func(string) (string, error)
	logger      *slog.Logger

	mu    sync.Mutex
	cache map[string]string
}

var _ service.Secrets = (*Oracle)(nil)

// NewOracle builds an oracle backed by the system keyring and terminal
// unless opts override them.
func NewOracle(opts Options) *Oracle {
	o := &Oracle{
		interactive: opts.Interactive,
		keyring:     opts.Keyring,
		prompt:      opts.Prompt,
		logger:      opts.Logger,
		cache:       map[string]string{},
	}
	if o.keyring == nil {
		o.keyring = SystemKeyring{}
	}
	if o.prompt == nil {
		o.prompt = Prompt
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "secrets")
	return o
}

// Password returns value itself unless it is an oracle reference.
func (o *Oracle) Password(ctx context.Context, keyringService, login, value string) (string, error) {
	if !strings.HasPrefix(value, OraclePrefix) {
		return value, nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	key := value + "\x00" + keyringService + "\x00" + login
	if command, ok := strings.CutPrefix(value, EvalPrefix); ok {
		key = value
		if cached, ok := o.cache[key]; ok {
			o.logger.Debug("using cached oracle result", "command", abbreviate(command))
			return cached, nil
		}
		pw, err := Eval(ctx, command)
		if err != nil {
			return "", err
		}
		o.cache[key] = pw
		return pw, nil
	}

	if cached, ok := o.cache[key]; ok {
		return cached, nil
	}

	var (
		pw  string
		err error
	)
	switch value {
	case UseKeyring:
		pw, err = o.fromKeyring(keyringService, login)
	case AskPassword:
		pw, err = o.ask(keyringService)
	default:
		return "", fmt.Errorf("unknown password oracle %q", value)
	}
	if err != nil {
		return "", err
	}
	if pw == "" {
		return "", fmt.Errorf("%w: oracle=%s, interactive=%t for service=%s", ErrMissingPassword, value, o.interactive, keyringService)
	}
	o.cache[key] = pw
	return pw, nil
}

func (o *Oracle) fromKeyring(keyringService, login string) (string, error) {
	pw, err := o.keyring.Get(keyringService, login)
	if err != nil {
		return "", fmt.Errorf("read keyring: %w", err)
	}
	if pw != "" {
		return pw, nil
	}
	if !o.interactive {
		o.logger.Error("unable to retrieve password from keyring, re-run in interactive mode to set a password",
			"service", keyringService, "login", login)
		return "", nil
	}

	pw, err = o.ask(keyringService)
	if err != nil || pw == "" {
		return pw, err
	}
	if err := o.keyring.Set(keyringService, login, pw); err != nil {
		return "", fmt.Errorf("store password in keyring: %w", err)
	}
	return pw, nil
}

func (o *Oracle) ask(keyringService string) (string, error) {
	if !o.interactive {
		return "", nil
	}
	return o.prompt(fmt.Sprintf("%s password: ", keyringService))
}

// Eval runs command through the shell and returns the first line it prints.
func Eval(ctx context.Context, command string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("error retrieving password: `%s` returned %q: %w", command, strings.TrimSpace(stderr.String()), err)
	}

	line, _ := bufio.NewReader(&stdout).ReadString('\n')
	return strings.TrimSpace(line), nil
}

func abbreviate(s string) string {
	if len(s) <= 20 {
		return s
	}
	return s[:20] + "..."
}
