package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/domain"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/engine"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/engine/auth"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/labels"
)

// binaryOutput carries a non-JSON payload such as an image or a report.
type binaryOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

func registerMachines(api huma.API, e engine.Engine, enc labels.Encoder) {
	type machinePath struct {
		MachineID string `path:"machine_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-machines",
		Method:      http.MethodGet,
		Path:        "/machines",
		Summary:     "List machines",
		Tags:        []string{"machines"},
	}, func(ctx context.Context, _ *struct{}) (*jsonOutput[MachinesResponse], error) {
		items, err := e.Repo.ListMachines(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(MachinesResponse{Machines: nonNil(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-machine",
		Method:      http.MethodGet,
		Path:        "/machines/{machine_id}",
		Summary:     "Get machine",
		Tags:        []string{"machines"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *machinePath) (*jsonOutput[domain.Machine], error) {
		m, err := e.Repo.GetMachine(ctx, input.MachineID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(m), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-machine",
		Method:        http.MethodPost,
		Path:          "/machines",
		Summary:       "Register a machine",
		Tags:          []string{"machines"},
		DefaultStatus: http.StatusCreated,
		Middlewares:   huma.Middlewares{requireAccess(api, auth.ManageMachines)},
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateMachineRequest
	}) (*jsonOutput[MachineCreatedResponse], error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.CreateMachine(ctx, p, engine.MachineInput{
			Name:     input.Body.Name,
			Location: input.Body.Location,
			Status:   domain.MachineStatus(input.Body.Status),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(MachineCreatedResponse{
			Message:     "Machine created successfully",
			Machine:     res.Machine,
			QRCodeSaved: res.LabelSaved,
		}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-machine",
		Method:      http.MethodPut,
		Path:        "/machines/{machine_id}",
		Summary:     "Update machine",
		Tags:        []string{"machines"},
		Middlewares: huma.Middlewares{requireAccess(api, auth.ManageMachines)},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MachineID string `path:"machine_id"`
		Body      UpdateMachineRequest
	}) (*jsonOutput[MachineResponse], error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		patch := engine.MachinePatch{Name: input.Body.Name, Location: input.Body.Location}
		if input.Body.Status != nil {
			s := domain.MachineStatus(*input.Body.Status)
			patch.Status = &s
		}
		m, err := e.UpdateMachine(ctx, p, input.MachineID, patch)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(MachineResponse{Message: "Machine updated successfully", Machine: m}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-machine",
		Method:      http.MethodDelete,
		Path:        "/machines/{machine_id}",
		Summary:     "Delete machine",
		Tags:        []string{"machines"},
		Middlewares: huma.Middlewares{requireAccess(api, auth.DeleteMachine)},
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *machinePath) (*jsonOutput[MessageResponse], error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteMachine(ctx, p, input.MachineID); err != nil {
			return nil, handleError(err)
		}
		return respond(MessageResponse{Message: "Machine deleted successfully"}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "machine-qrcode",
		Method:      http.MethodGet,
		Path:        "/machines/{machine_id}/qrcode",
		Summary:     "QR code label as PNG",
		Tags:        []string{"machines"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *machinePath) (*binaryOutput, error) {
		m, err := e.Repo.GetMachine(ctx, input.MachineID)
		if err != nil {
			return nil, handleError(err)
		}
		png, err := enc.Encode(m.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &binaryOutput{ContentType: "image/png", Body: png}, nil
	})
}
