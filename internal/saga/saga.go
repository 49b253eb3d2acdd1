package saga

import (
	"context"
	"errors"
	"fmt"
)

// Step — прямой шаг многошаговой операции с опциональной компенсацией.
// Compensate == nil означает, что шаг откатить нельзя.
type Step struct {
	Name       string
	Run        func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Run выполняет шаги по порядку. Ошибка шага N запускает компенсации
// завершённых шагов в обратном порядке; ошибка компенсации не глотается,
// а агрегируется с первичной через errors.Join — вызывающий видит обе.
func Run(ctx context.Context, steps []Step) error {
	for i, st := range steps {
		if err := st.Run(ctx); err != nil {
			errs := []error{fmt.Errorf("step %s: %w", st.Name, err)}
			for j := i - 1; j >= 0; j-- {
				if steps[j].Compensate == nil {
					continue
				}
				if cerr := steps[j].Compensate(ctx); cerr != nil {
					errs = append(errs, fmt.Errorf("compensate %s: %w", steps[j].Name, cerr))
				}
			}
			return errors.Join(errs...)
		}
	}
	return nil
}
