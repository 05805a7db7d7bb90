package sim

import (
	"fmt"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/smog/components"
	"github.com/pthm-cable/smog/config"
	"github.com/pthm-cable/smog/systems"
)

// spawnAll places explicit placements first, in config order, then the
// random population per variant in activation order.
func (s *Simulation) spawnAll() error {
	for i, pl := range s.cfg.Placements {
		kind, ok := components.ParseKind(pl.Kind)
		if !ok {
			return fmt.Errorf("placements[%d]: unknown kind %q", i, pl.Kind)
		}
		if _, err := s.spawn(kind, components.Position{X: pl.X, Y: pl.Y}); err != nil {
			return fmt.Errorf("%w: placements[%d]: %w", config.ErrInvalidConfiguration, i, err)
		}
	}

	counts := map[components.Kind]int{
		components.KindMonitor: s.cfg.Population.Monitors,
		components.KindFactory: s.cfg.Population.Factories,
		components.KindTree:    s.cfg.Population.Trees,
		components.KindCar:     s.cfg.Population.Cars,
	}
	for _, kind := range components.Kinds {
		for i := 0; i < counts[kind]; i++ {
			p, err := s.randomCell(kind)
			if err != nil {
				return err
			}
			if _, err := s.spawn(kind, p); err != nil {
				return err
			}
		}
	}
	return nil
}

// randomCell draws a seeded cell. Cars only draw from cells without a car.
func (s *Simulation) randomCell(kind components.Kind) (components.Position, error) {
	if !kind.Mobile() {
		return s.grid.PosOf(s.rng.Intn(s.grid.Len())), nil
	}
	free := make([]int, 0, s.grid.Len())
	for i := 0; i < s.grid.Len(); i++ {
		if !s.grid.CarAt(s.grid.PosOf(i)) {
			free = append(free, i)
		}
	}
	if len(free) == 0 {
		return components.Position{}, fmt.Errorf("%w: no free cell left for a car", systems.ErrOccupiedOrInvalid)
	}
	return s.grid.PosOf(free[s.rng.Intn(len(free))]), nil
}

// spawn creates one agent at p with the next id.
func (s *Simulation) spawn(kind components.Kind, p components.Position) (ecs.Entity, error) {
	id := s.nextID
	if err := s.grid.Place(systems.Occupant{ID: id, Kind: kind}, p); err != nil {
		return ecs.Entity{}, err
	}
	s.nextID++

	agent := components.Agent{ID: id, Kind: kind}
	pos := p
	cfg := s.cfg

	var entity ecs.Entity
	switch kind {
	case components.KindCar:
		car := components.Car{
			Dest:     s.randomDestination(p),
			Emission: cfg.Car.Emission,
		}
		entity = s.carMapper.NewEntity(&agent, &pos, &car)
	case components.KindFactory:
		factory := components.Factory{
			BaseEmission: cfg.Factory.BaseEmission,
			Modifier:     1,
		}
		entity = s.factoryMapper.NewEntity(&agent, &pos, &factory)
	case components.KindTree:
		tree := components.Tree{
			Health:         1,
			AbsorptionRate: cfg.Tree.AbsorptionRate,
			Tolerance:      cfg.Tree.Tolerance,
		}
		entity = s.treeMapper.NewEntity(&agent, &pos, &tree)
	case components.KindMonitor:
		monitor := components.Monitor{
			Critical: cfg.Monitor.CriticalThreshold,
			Radius:   cfg.Monitor.Radius,
		}
		entity = s.monitorMapper.NewEntity(&agent, &pos, &monitor)
	}

	s.order[kind] = append(s.order[kind], entity)
	return entity, nil
}

// randomDestination draws a destination other than from.
func (s *Simulation) randomDestination(from components.Position) components.Position {
	n := s.grid.Len()
	if n < 2 {
		return from
	}
	i := s.rng.Intn(n - 1)
	if i >= s.grid.Index(from) {
		i++
	}
	return s.grid.PosOf(i)
}
