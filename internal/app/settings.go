package service

import (
	"context"

	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/pkg/logger"
)

// Settings returns a copy of the current runtime settings.
func (s *Service) Settings() model.Settings {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	return s.settings.Clone()
}

// UpdateSettings replaces the thresholds and updates the enable flag of
// every connector named in next.Connectors. Unknown connectors and
// misordered thresholds fail with model.ErrConfiguration and change nothing.
// The result is saved before it takes effect.
func (s *Service) UpdateSettings(ctx context.Context, next model.Settings) (model.Settings, error) {
	if err := s.ready(); err != nil {
		return model.Settings{}, err
	}
	if err := next.Thresholds.Validate(); err != nil {
		return model.Settings{}, err
	}

	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	for id := range next.Connectors {
		if _, ok := s.settings.Connectors[id]; !ok {
			return model.Settings{}, model.NewKind("settings.update", model.ErrConfiguration, "unknown connector %q", id)
		}
	}
	out := s.settings.Clone()
	out.Thresholds = next.Thresholds
	for id, on := range next.Connectors {
		out.Connectors[id] = on
	}
	if s.state != nil {
		if err := s.state.SaveSettings(ctx, out); err != nil {
			return model.Settings{}, err
		}
	}
	if err := s.engine.SetThresholds(out.Thresholds); err != nil {
		return model.Settings{}, err
	}
	s.settings = out.Clone()

	s.logger.Info(ctx, "settings updated",
		logger.Float64("auto_merge_threshold", out.Thresholds.AutoMerge),
		logger.Float64("no_match_threshold", out.Thresholds.NoMatch),
		logger.Strings("enabled", out.Enabled()),
	)
	return out, nil
}
