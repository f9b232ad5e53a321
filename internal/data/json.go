package data

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"battery-sizer/internal/model"
)

// JSONSource reads {"demand_fraction": [...], "pv_fraction": [...]}.
type JSONSource struct {
	Path string
}

func (s *JSONSource) Load(ctx context.Context) (model.Profiles, error) {
	if err := ctx.Err(); err != nil {
		return model.Profiles{}, err
	}
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return model.Profiles{}, err
	}
	var p model.Profiles
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.Profiles{}, fmt.Errorf("%s: %w", s.Path, err)
	}
	return p, nil
}
