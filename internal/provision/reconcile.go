package provision

import (
	"context"
	"errors"
	"fmt"
)

// ReconcileOrphans удаляет custody-записи, чей RouterID отсутствует в
// живой таблице пиров маршрутизатора (пира снесли мимо нас, out-of-band).
// Компенсаций не нужно: на стороне маршрутизатора уже пусто.
// Возвращает число удалённых записей. Запускается только явно —
// по ручному триггеру или cleanup-флагу листинга; чтения по умолчанию
// остаются свободными от побочных эффектов.
func (s *Service) ReconcileOrphans(ctx context.Context) (int, error) {
	peers, err := s.router.ListPeers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list peers: %w", err)
	}
	live := make(map[string]struct{}, len(peers))
	for _, p := range peers {
		live[p.ID] = struct{}{}
	}

	recs, err := s.store.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list custody records: %w", err)
	}

	removed := 0
	var errs []error
	for _, rec := range recs {
		if _, ok := live[rec.RouterID]; ok {
			continue
		}
		if err := s.store.Delete(ctx, rec.RouterID); err != nil {
			errs = append(errs, fmt.Errorf("delete orphan %s: %w", rec.RouterID, err))
			continue
		}
		s.log.Infof("orphan custody record removed router_id=%s name=%q", rec.RouterID, rec.Name)
		removed++
	}
	return removed, errors.Join(errs...)
}
