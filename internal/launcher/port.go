package launcher

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/melih/lighthouse-launch/internal/core/domain"
)

// PortEnv is the variable the platform uses to inject the listening port.
const PortEnv = "PORT"

var ErrInvalidPort = errors.New("invalid port")

// ResolvePort reads PORT through getenv. Unset or empty falls back to
// fallback; anything else must be an integer in 1..65535.
func ResolvePort(getenv func(string) string, fallback int) (int, error) {
	raw := strings.TrimSpace(getenv(PortEnv))
	if raw == "" {
		if !domain.ValidPort(fallback) {
			return 0, fmt.Errorf("%w: default %d", ErrInvalidPort, fallback)
		}
		return fallback, nil
	}
	p, err := strconv.Atoi(raw)
	if err != nil || !domain.ValidPort(p) {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidPort, PortEnv, raw)
	}
	return p, nil
}
