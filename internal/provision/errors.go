package provision

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound — пира с таким идентификатором на маршрутизаторе нет.
	ErrNotFound = errors.New("peer not found")
	// ErrPeerIDResolutionFailed — RouterOS не вернул идентификатор, и
	// re-list по (public-key, comment) тоже не нашёл созданного пира.
	ErrPeerIDResolutionFailed = errors.New("could not resolve identifier of created peer")
	// ErrConfigUnavailable — custody-записи нет, конфиг не восстановим.
	ErrConfigUnavailable = errors.New("peer configuration unavailable")
	// ErrServerNotConfigured — у wg-интерфейса маршрутизатора нет
	// публичного ключа, клиентский конфиг собрать не из чего.
	ErrServerNotConfigured = errors.New("server wireguard interface is not configured")
)

// ConfigUnavailableError несёт диагностический список доступных
// идентификаторов (для 404-ответа API). Матчится с ErrConfigUnavailable.
type ConfigUnavailableError struct {
	ID        string
	Available []string
}

func (e *ConfigUnavailableError) Error() string {
	return fmt.Sprintf("peer configuration unavailable for %s (%d records available)",
		e.ID, len(e.Available))
}

func (e *ConfigUnavailableError) Unwrap() error { return ErrConfigUnavailable }
