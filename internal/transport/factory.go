package transport

import "github.com/ignite/nuntius/internal/config"

// NewFromConfig builds the Transport selected by cfg.Transport.Backend
// (spec.md §6 EMAIL_BACKEND).
func NewFromConfig(cfg *config.Config) (Transport, error) {
	switch cfg.Transport.Backend {
	case "smtp":
		return NewSMTPTransport(
			cfg.Transport.SMTP.Host,
			cfg.Transport.SMTP.Port,
			cfg.Transport.SMTP.Username,
			cfg.Transport.SMTP.Password,
			nil,
		), nil
	case "ses":
		return NewSESTransport(cfg.Transport.SES.Region, "", ""), nil
	case "http":
		return NewHTTPAPITransport(cfg.Transport.HTTP.BaseURL, cfg.Transport.HTTP.APIKey), nil
	default:
		return nil, unsupportedBackendError(cfg.Transport.Backend)
	}
}

func unsupportedBackendError(backend string) error {
	return &unsupportedBackend{backend: backend}
}

type unsupportedBackend struct{ backend string }

func (e *unsupportedBackend) Error() string {
	return "transport: unsupported backend " + e.backend
}
