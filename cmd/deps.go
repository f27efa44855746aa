package cmd

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sentinai-cli/internal/client"
	"github.com/xkilldash9x/sentinai-cli/internal/config"
	"github.com/xkilldash9x/sentinai-cli/internal/dashboard"
	"github.com/xkilldash9x/sentinai-cli/internal/observability"
	"github.com/xkilldash9x/sentinai-cli/internal/owasp"
	"github.com/xkilldash9x/sentinai-cli/internal/results"
	"github.com/xkilldash9x/sentinai-cli/internal/results/providers"
	"github.com/xkilldash9x/sentinai-cli/internal/session"
)

// dependencies are the seams commands use to reach the outside world. Tests
// replace them with in-memory versions.
type dependencies struct {
	stores storeProvider
	listen func(network, address string) (net.Listener, error)
	stdin  io.Reader
	now    func() time.Time
}

func defaultDependencies() *dependencies {
	return &dependencies{
		stores: NewStoreProvider(),
		listen: net.Listen,
		stdin:  os.Stdin,
		now:    time.Now,
	}
}

// newAPIClient builds a client for the configured service. With
// requireSession the stored login must exist and be unexpired; otherwise a
// missing session simply sends unauthenticated requests.
func newAPIClient(cfg config.Interface, requireSession bool) (*client.Client, error) {
	sess, err := session.Load(cfg.Session().Path)
	switch {
	case errors.Is(err, session.ErrNoSession):
		if requireSession {
			return nil, err
		}
		sess = nil
	case err != nil:
		return nil, err
	}

	return client.New(cfg.API(),
		client.WithSession(sess),
		client.WithLogger(observability.GetLogger()))
}

// newEnricher classifies findings with the default OWASP rules and attaches
// CWE identifiers.
func newEnricher(logger *zap.Logger) *results.Enricher {
	return results.NewEnricher(owasp.NewClassifier(), providers.NewInMemoryCWEProvider(), logger)
}

// dashboardOptions maps the dashboard config section onto the aggregator.
func dashboardOptions(cfg config.Interface) (dashboard.Options, error) {
	loc, err := cfg.Dashboard().Location()
	if err != nil {
		return dashboard.Options{}, err
	}
	return dashboard.Options{RecentLimit: cfg.Dashboard().RecentLimit, Location: loc}, nil
}

// readInput reads a file argument, or stdin for "-" or no argument.
func readInput(deps *dependencies, args []string) (name string, content []byte, err error) {
	if len(args) == 0 || args[0] == "-" {
		content, err = io.ReadAll(deps.stdin)
		if err != nil {
			return "", nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return "", content, nil
	}
	content, err = os.ReadFile(args[0])
	if err != nil {
		return "", nil, fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return args[0], content, nil
}
