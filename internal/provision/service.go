package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/cloudxmr/Wireguard-Manager/config"
	"github.com/cloudxmr/Wireguard-Manager/internal/ipam"
	"github.com/cloudxmr/Wireguard-Manager/internal/keys"
	"github.com/cloudxmr/Wireguard-Manager/internal/logs"
	"github.com/cloudxmr/Wireguard-Manager/internal/models"
	"github.com/cloudxmr/Wireguard-Manager/internal/routeros"
	"github.com/cloudxmr/Wireguard-Manager/internal/saga"
)

// RouterClient — управляющий интерфейс маршрутизатора (живая таблица пиров).
type RouterClient interface {
	ListPeers(ctx context.Context) ([]routeros.Peer, error)
	GetPeer(ctx context.Context, id string) (*routeros.Peer, error)
	CreatePeer(ctx context.Context, f routeros.PeerFields) (routeros.CreateOutcome, error)
	UpdatePeer(ctx context.Context, id string, f routeros.PeerFields) error
	DeletePeer(ctx context.Context, id string) error
	GetInterfaceInfo(ctx context.Context) (*routeros.InterfaceInfo, error)
}

// CustodyStore — хранилище приватного материала.
type CustodyStore interface {
	Save(ctx context.Context, rec *models.KeyCustodyRecord) error
	Get(ctx context.Context, routerID string) (*models.KeyCustodyRecord, error)
	ListAll(ctx context.Context) ([]models.KeyCustodyRecord, error)
	Delete(ctx context.Context, routerID string) error
	UpdatePresharedKey(ctx context.Context, routerID, psk string) error
	UpdateMeta(ctx context.Context, routerID, name, allowedAddress string, attributes datatypes.JSON) error
}

// KeyGenerator — генератор ключевых пар.
type KeyGenerator interface {
	Generate(withPresharedKey bool) (*keys.KeyPair, error)
}

// Service — оркестратор: держит маршрутизатор и custody-хранилище в
// согласии, несмотря на нетранзакционность многошаговых операций.
// Блокировок нет намеренно: гонки create/create и toggle/toggle
// документированы, последний пишущий побеждает.
type Service struct {
	router RouterClient
	store  CustodyStore
	gen    KeyGenerator
	cfg    *config.Config
	log    *logrus.Entry
}

func New(router RouterClient, store CustodyStore, gen KeyGenerator, cfg *config.Config) *Service {
	return &Service{
		router: router,
		store:  store,
		gen:    gen,
		cfg:    cfg,
		log:    logs.Component("orchestrator"),
	}
}

// List отдаёт пиров маршрутизатора, помечая наличие custody-записи.
// Пир без записи — легальное деградированное состояние («конфиг
// недоступен»), клиенту оно показывается как config_available=false.
// cleanup=true дополнительно прогоняет reconcile до чтения.
func (s *Service) List(ctx context.Context, cleanup bool) ([]models.PeerIdentity, error) {
	if cleanup {
		if n, err := s.ReconcileOrphans(ctx); err != nil {
			s.log.Warnf("opportunistic reconcile failed: %v", err)
		} else if n > 0 {
			s.log.Infof("opportunistic reconcile removed %d orphan(s)", n)
		}
	}

	peers, err := s.router.ListPeers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	recs, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list custody records: %w", err)
	}
	byRouterID := make(map[string]*models.KeyCustodyRecord, len(recs))
	for i := range recs {
		byRouterID[recs[i].RouterID] = &recs[i]
	}

	out := make([]models.PeerIdentity, 0, len(peers))
	for _, p := range peers {
		out = append(out, toIdentity(p, byRouterID[p.ID]))
	}
	return out, nil
}

// Create заводит нового пира: ключи → валидация → адрес → пир на
// маршрутизаторе → custody-запись. Последние два шага — сага: если
// запись не сохранилась, только что созданный пир удаляется, чтобы не
// оставлять пира без приватного ключа.
func (s *Service) Create(ctx context.Context, req models.CreatePeerRequest) (*models.PeerIdentity, error) {
	usePSK := req.UsePresharedKey == nil || *req.UsePresharedKey

	kp, err := s.generateValidated(usePSK)
	if err != nil {
		return nil, err
	}

	address := req.AllowedAddress
	if address == "" {
		address, err = s.allocateAddress(ctx)
		if err != nil {
			return nil, err
		}
	}

	id, err := s.createWithCustody(ctx, req.Name, address, req.Attributes, kp)
	if err != nil {
		return nil, err
	}

	s.log.Infof("peer created id=%s name=%q address=%s psk=%t", id, req.Name, address, usePSK)
	return s.identityByID(ctx, id)
}

// createWithCustody — общая сага для Create и полной регенерации.
func (s *Service) createWithCustody(ctx context.Context, name, address string, attrs datatypes.JSON, kp *keys.KeyPair) (string, error) {
	var routerID string

	comment := name
	disabled := false
	fields := routeros.PeerFields{
		PublicKey:      kp.PublicKey,
		AllowedAddress: address,
		Comment:        &comment,
		Disabled:       &disabled,
	}
	if kp.PresharedKey != "" {
		fields.PresharedKey = &kp.PresharedKey
	}

	err := saga.Run(ctx, []saga.Step{
		{
			Name: "create-router-peer",
			Run: func(ctx context.Context) error {
				outcome, err := s.router.CreatePeer(ctx, fields)
				if err != nil {
					return err
				}
				routerID, err = s.resolveCreatedID(ctx, outcome, kp.PublicKey, comment)
				return err
			},
			Compensate: func(ctx context.Context) error {
				// Идентификатор известен — состояние не двусмысленно,
				// откат безопасен.
				if routerID == "" {
					return nil
				}
				return s.router.DeletePeer(ctx, routerID)
			},
		},
		{
			Name: "save-custody-record",
			Run: func(ctx context.Context) error {
				return s.store.Save(ctx, &models.KeyCustodyRecord{
					RouterID:       routerID,
					Name:           name,
					PrivateKey:     kp.PrivateKey,
					PresharedKey:   kp.PresharedKey,
					AllowedAddress: address,
					Attributes:     attrs,
				})
			},
		},
	})
	if err != nil {
		return "", err
	}
	return routerID, nil
}

// resolveCreatedID превращает типизированный результат создания в
// идентификатор. OutcomeNoID разрешается повторным листингом и точным
// совпадением (public-key, comment): публичные ключи уникальны. Если и
// это не помогло — пир, возможно, болтается на маршрутизаторе; удалять
// по двусмысленному состоянию нельзя, рискуем снести чужого.
func (s *Service) resolveCreatedID(ctx context.Context, outcome routeros.CreateOutcome, publicKey, comment string) (string, error) {
	switch outcome.Kind {
	case routeros.OutcomeDirectID, routeros.OutcomeNestedID:
		return outcome.ID, nil
	}

	peers, err := s.router.ListPeers(ctx)
	if err != nil {
		s.log.Errorf("id resolution re-list failed, router-side peer may dangle (public key %s): %v",
			publicKey, err)
		return "", fmt.Errorf("%w: %v", ErrPeerIDResolutionFailed, err)
	}
	for _, p := range peers {
		if p.PublicKey == publicKey && p.Comment == comment {
			return p.ID, nil
		}
	}
	s.log.Errorf("created peer not found by (public-key, comment), leaving router state as is (public key %s)",
		publicKey)
	return "", ErrPeerIDResolutionFailed
}

// Update — два взаимоисключающих режима: полная регенерация или
// правка на месте.
func (s *Service) Update(ctx context.Context, id string, req models.UpdatePeerRequest) (*models.PeerIdentity, error) {
	if req.Regenerate {
		return s.regenerate(ctx, id, req)
	}
	return s.updateInPlace(ctx, id, req)
}

// updateInPlace трактует пустые Name/AllowedAddress как «не задано» —
// симметрично с обеих сторон: ни в PATCH маршрутизатору, ни в
// custody-запись такие поля не попадают. Иначе частичный запрос
// (например, только enabled) стирал бы метаданные в одном хранилище,
// оставляя их в другом.
func (s *Service) updateInPlace(ctx context.Context, id string, req models.UpdatePeerRequest) (*models.PeerIdentity, error) {
	disabled := !req.Enabled
	fields := routeros.PeerFields{Disabled: &disabled}
	if req.Name != "" {
		comment := req.Name
		fields.Comment = &comment
	}
	if req.AllowedAddress != "" {
		fields.AllowedAddress = req.AllowedAddress
	}
	if err := s.router.UpdatePeer(ctx, id, fields); err != nil {
		return nil, mapRouterErr(err)
	}

	if req.UpdatePresharedKey {
		kp, err := s.generateValidated(true)
		if err != nil {
			return nil, err
		}
		// Порядок фиксированный: сначала маршрутизатор, потом custody.
		// Провал между ними оставляет custody-копию устаревшей; экспорт
		// конфига выдаст PSK, не совпадающий с маршрутизатором. Известный
		// разрыв, автопочинки нет.
		if err := s.router.UpdatePeer(ctx, id, routeros.PeerFields{PresharedKey: &kp.PresharedKey}); err != nil {
			return nil, mapRouterErr(err)
		}
		if err := s.store.UpdatePresharedKey(ctx, id, kp.PresharedKey); err != nil {
			s.log.Errorf("preshared key updated on router but custody write failed, stored copy is stale id=%s: %v", id, err)
			return nil, fmt.Errorf("custody preshared key update: %w", err)
		}
	}

	if req.Name != "" || req.AllowedAddress != "" || len(req.Attributes) > 0 {
		if err := s.store.UpdateMeta(ctx, id, req.Name, req.AllowedAddress, req.Attributes); err != nil {
			s.log.Warnf("custody meta update failed id=%s: %v", id, err)
		}
	}
	return s.identityByID(ctx, id)
}

// regenerate — путь восстановления, когда custody-запись потеряна, а
// рабочий конфиг всё же нужен: старый пир и запись сносятся, создаются
// новые под НОВЫМ идентификатором. PSK обязателен. Вызывающий обязан
// считать возвращённый идентификатор авторитетным.
func (s *Service) regenerate(ctx context.Context, id string, req models.UpdatePeerRequest) (*models.PeerIdentity, error) {
	old, err := s.router.GetPeer(ctx, id)
	if err != nil {
		return nil, mapRouterErr(err)
	}

	name := req.Name
	if name == "" {
		name = old.Comment
	}
	address := req.AllowedAddress
	if address == "" {
		address = old.AllowedAddress
	}

	kp, err := s.generateValidated(true)
	if err != nil {
		return nil, err
	}

	if err := s.router.DeletePeer(ctx, id); err != nil {
		return nil, fmt.Errorf("delete old peer %s: %w", id, err)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		// Пир уже удалён — запись стала сиротой, её приберёт reconcile.
		s.log.Warnf("old custody record not deleted, reconcile will pick it up id=%s: %v", id, err)
	}

	newID, err := s.createWithCustody(ctx, name, address, req.Attributes, kp)
	if err != nil {
		return nil, err
	}
	s.log.Infof("peer regenerated old=%s new=%s name=%q", id, newID, name)
	return s.identityByID(ctx, newID)
}

// Toggle читает текущий флаг disabled, инвертирует и пишет обратно.
// Без optimistic concurrency: параллельные переключения — last write wins.
func (s *Service) Toggle(ctx context.Context, id string) (*models.PeerIdentity, error) {
	p, err := s.router.GetPeer(ctx, id)
	if err != nil {
		return nil, mapRouterErr(err)
	}
	disabled := !p.Disabled
	if err := s.router.UpdatePeer(ctx, id, routeros.PeerFields{Disabled: &disabled}); err != nil {
		return nil, mapRouterErr(err)
	}
	return s.identityByID(ctx, id)
}

// Delete: неудача удаления на маршрутизаторе логируется и глотается —
// исчезнувший пир и провалившийся delete для вызывающего неразличимы,
// а чистота custody-хранилища важнее зеркально точной ошибки.
// Запись удаляется безусловно.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.router.DeletePeer(ctx, id); err != nil {
		s.log.Warnf("router delete failed (peer may be gone already), proceeding with custody cleanup id=%s: %v", id, err)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete custody record %s: %w", id, err)
	}
	s.log.Infof("peer deleted id=%s", id)
	return nil
}

// ServerInfo — параметры wg-интерфейса + endpoint из конфигурации.
func (s *Service) ServerInfo(ctx context.Context) (*models.ServerInfo, error) {
	info, err := s.router.GetInterfaceInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("interface info: %w", err)
	}
	return &models.ServerInfo{
		Interface:  info.Name,
		PublicKey:  info.PublicKey,
		ListenPort: info.ListenPort,
		Endpoint:   s.cfg.WireGuard.Endpoint,
	}, nil
}

// ---- helpers ----

// generateValidated прогоняет каждый сгенерированный ключ через
// валидатор: малформатный ключ — баг генератора, он не должен попасть
// ни на маршрутизатор, ни в custody-запись.
func (s *Service) generateValidated(withPSK bool) (*keys.KeyPair, error) {
	kp, err := s.gen.Generate(withPSK)
	if err != nil {
		return nil, err
	}
	if !keys.IsValid(kp.PublicKey) {
		return nil, fmt.Errorf("%w: public key", keys.ErrInvalidGeneratedKey)
	}
	if withPSK && !keys.IsValid(kp.PresharedKey) {
		return nil, fmt.Errorf("%w: preshared key", keys.ErrInvalidGeneratedKey)
	}
	return kp, nil
}

func (s *Service) allocateAddress(ctx context.Context) (string, error) {
	peers, err := s.router.ListPeers(ctx)
	if err != nil {
		return "", fmt.Errorf("list peers for allocation: %w", err)
	}
	used := make([]string, 0, len(peers))
	for _, p := range peers {
		used = append(used, p.AllowedAddress)
	}
	return ipam.NextAddress(s.cfg.WireGuard.SubnetCIDR, used)
}

func (s *Service) identityByID(ctx context.Context, id string) (*models.PeerIdentity, error) {
	p, err := s.router.GetPeer(ctx, id)
	if err != nil {
		return nil, mapRouterErr(err)
	}
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		rec = nil
	}
	ident := toIdentity(*p, rec)
	return &ident, nil
}

func toIdentity(p routeros.Peer, rec *models.KeyCustodyRecord) models.PeerIdentity {
	ident := models.PeerIdentity{
		ID:              p.ID,
		Name:            p.Comment,
		PublicKey:       p.PublicKey,
		AllowedAddress:  p.AllowedAddress,
		Enabled:         !p.Disabled,
		PresharedKey:    p.HasPresharedKey,
		LastHandshake:   p.LastHandshake,
		RxBytes:         p.Rx,
		TxBytes:         p.Tx,
		ConfigAvailable: rec != nil,
	}
	if rec != nil {
		ident.Attributes = rec.Attributes
	}
	return ident
}

func mapRouterErr(err error) error {
	if errors.Is(err, routeros.ErrPeerNotFound) {
		return ErrNotFound
	}
	return err
}
