package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/echocode-voice/internal/model"
	"github.com/ekisa-team/echocode-voice/internal/service"
)

type (
	ListModelsOutput struct {
		Body struct {
			Models []model.Info `json:"models"`
		}
	}
)

// NewModelsHandler registers the model listing.
func NewModelsHandler(api huma.API, models service.Models) {
	huma.Register(api, huma.Operation{
		OperationID:   "list-models",
		Method:        http.MethodGet,
		Path:          "/v1/models",
		Summary:       "List models known to the service",
		Tags:          []string{"models"},
		DefaultStatus: http.StatusOK,
	}, func(ctx context.Context, _ *struct{}) (*ListModelsOutput, error) {
		out := &ListModelsOutput{}
		out.Body.Models = []model.Info{}

		for _, mi := range models.Registry().List() {
			out.Body.Models = append(out.Body.Models, mi.Info())
		}

		return out, nil
	})
}
