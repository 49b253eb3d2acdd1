package keys

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/cloudxmr/Wireguard-Manager/internal/logs"
)

var (
	// ErrKeyGenerationUnavailable — ни одна стратегия не смогла выдать ключи.
	ErrKeyGenerationUnavailable = errors.New("key generation unavailable: no usable backend")
	// ErrInvalidGeneratedKey — генератор выдал ключ, не прошедший IsValid.
	ErrInvalidGeneratedKey = errors.New("generator produced malformed key")
)

// KeyPair — результат генерации. PublicKey всегда выведен из PrivateKey
// (Curve25519 scalar mult), никогда не рандомизируется независимо.
type KeyPair struct {
	PrivateKey   string
	PublicKey    string
	PresharedKey string // пусто, если PSK не запрашивали
}

// strategy — одна ранжированная стратегия генерации.
// Первая доступная и успешная побеждает.
type strategy interface {
	name() string
	available() bool
	generate(withPSK bool) (*KeyPair, error)
}

// Generator перебирает стратегии по порядку: внешняя утилита wg,
// затем in-process Curve25519. Исчерпание — ErrKeyGenerationUnavailable.
type Generator struct {
	strategies []strategy
}

func NewGenerator() *Generator {
	return &Generator{strategies: []strategy{
		&wgToolStrategy{},
		&curveStrategy{},
	}}
}

func (g *Generator) Generate(withPresharedKey bool) (*KeyPair, error) {
	log := logs.Component("keygen")
	for _, s := range g.strategies {
		if !s.available() {
			log.Debugf("strategy %s unavailable, skipping", s.name())
			continue
		}
		kp, err := s.generate(withPresharedKey)
		if err != nil {
			log.Warnf("strategy %s failed: %v", s.name(), err)
			continue
		}
		log.Debugf("keys generated via %s", s.name())
		return kp, nil
	}
	return nil, ErrKeyGenerationUnavailable
}

// ---- стратегия 1: внешняя утилита wg ----

const wgProbeTimeout = 3 * time.Second

// wgToolStrategy шеллится в wg(8): genkey, затем обязательная деривация
// публичного ключа через `wg pubkey` (stdin). Путь к бинарю ищется один
// раз: сначала PATH, затем известные каталоги установки; каждый кандидат
// проверяется версионной пробой с таймаутом.
type wgToolStrategy struct {
	once sync.Once
	path string
}

func (s *wgToolStrategy) name() string { return "wg-tool" }

var wgKnownDirs = []string{
	"/usr/bin",
	"/usr/local/bin",
	"/usr/sbin",
	"/opt/homebrew/bin",
}

func (s *wgToolStrategy) available() bool {
	s.once.Do(func() { s.path = locateWG() })
	return s.path != ""
}

func locateWG() string {
	candidates := make([]string, 0, len(wgKnownDirs)+1)
	if p, err := exec.LookPath("wg"); err == nil {
		candidates = append(candidates, p)
	}
	for _, dir := range wgKnownDirs {
		candidates = append(candidates, filepath.Join(dir, "wg"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err != nil {
			continue
		}
		if probeWG(c) {
			return c
		}
	}
	return ""
}

func probeWG(path string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), wgProbeTimeout)
	defer cancel()
	return exec.CommandContext(ctx, path, "--version").Run() == nil
}

func (s *wgToolStrategy) generate(withPSK bool) (*KeyPair, error) {
	priv, err := s.run(nil, "genkey")
	if err != nil {
		return nil, err
	}
	// Деривация обязательна: независимо сгенерированный «публичный»
	// ключ не совпал бы с приватным.
	pub, err := s.run(strings.NewReader(priv), "pubkey")
	if err != nil {
		return nil, err
	}
	kp := &KeyPair{PrivateKey: priv, PublicKey: pub}
	if withPSK {
		psk, err := s.run(nil, "genpsk")
		if err != nil {
			return nil, err
		}
		kp.PresharedKey = psk
	}
	return kp, nil
}

func (s *wgToolStrategy) run(stdin *strings.Reader, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), wgProbeTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, s.path, args...)
	if stdin != nil {
		cmd.Stdin = stdin
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return strings.TrimRight(out.String(), "\r\n"), nil
}

// ---- стратегия 2: in-process Curve25519 ----

// curveStrategy генерирует пару через wgtypes (та же математика, что и у
// wg(8)); PSK — 32 случайных байта. Доступна всегда.
type curveStrategy struct{}

func (curveStrategy) name() string    { return "curve25519" }
func (curveStrategy) available() bool { return true }

func (curveStrategy) generate(withPSK bool) (*KeyPair, error) {
	priv, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	kp := &KeyPair{
		PrivateKey: priv.String(),
		PublicKey:  priv.PublicKey().String(),
	}
	if withPSK {
		psk, err := wgtypes.GenerateKey()
		if err != nil {
			return nil, err
		}
		kp.PresharedKey = psk.String()
	}
	return kp, nil
}
