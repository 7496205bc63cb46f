package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/domain"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/engine"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/engine/auth"
)

func registerAuth(api huma.API, e engine.Engine, svc auth.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a session token",
		Tags:        []string{"auth"},
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest
	}) (*jsonOutput[LoginResponse], error) {
		matricule := strings.TrimSpace(input.Body.MatriculeNumber)
		if matricule == "" || input.Body.Password == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "missing matricule_number or password", nil)
		}
		session, err := svc.Authenticate(ctx, matricule, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(LoginResponse{Token: session.Token, User: session.User}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/auth/register",
		Summary:       "Create an account",
		Tags:          []string{"auth"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body RegisterRequest
	}) (*jsonOutput[UserResponse], error) {
		u, err := e.Register(ctx, engine.RegisterInput{
			UserID:    input.Body.UserID,
			Matricule: input.Body.MatriculeNumber,
			Name:      input.Body.Name,
			Email:     input.Body.Email,
			Password:  input.Body.Password,
			Service:   domain.Service(strings.TrimSpace(input.Body.Service)),
			Role:      domain.Role(strings.TrimSpace(input.Body.Role)),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(UserResponse{Message: "User created successfully", User: u}), nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	type userPath struct {
		UserID string `path:"user_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/users/me",
		Summary:     "Current user",
		Tags:        []string{"users"},
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*jsonOutput[domain.User], error) {
		u, ok := userFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return respond(u), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List active users",
		Tags:        []string{"users"},
	}, func(ctx context.Context, _ *struct{}) (*jsonOutput[UsersResponse], error) {
		users, err := e.ListUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(UsersResponse{Users: nonNil(users)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}",
		Summary:     "Get user",
		Tags:        []string{"users"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *userPath) (*jsonOutput[domain.User], error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.GetUser(ctx, p, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(u), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-user",
		Method:      http.MethodPut,
		Path:        "/users/{user_id}",
		Summary:     "Update user",
		Tags:        []string{"users"},
		Middlewares: huma.Middlewares{requireAccess(api, auth.ManageUsers)},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
		Body   UpdateUserRequest
	}) (*jsonOutput[UserResponse], error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		patch := engine.UserPatch{
			Name:      input.Body.Name,
			Email:     input.Body.Email,
			Matricule: input.Body.MatriculeNumber,
			Active:    input.Body.IsActive,
		}
		if input.Body.Service != nil {
			s := domain.Service(*input.Body.Service)
			patch.Service = &s
		}
		if input.Body.Role != nil {
			r := domain.Role(*input.Body.Role)
			patch.Role = &r
		}
		u, err := e.UpdateUser(ctx, p, input.UserID, patch)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(UserResponse{Message: "User updated successfully", User: u}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-user",
		Method:      http.MethodDelete,
		Path:        "/users/{user_id}",
		Summary:     "Delete user",
		Tags:        []string{"users"},
		Middlewares: huma.Middlewares{requireAccess(api, auth.ManageUsers)},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *userPath) (*jsonOutput[MessageResponse], error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteUser(ctx, p, input.UserID); err != nil {
			return nil, handleError(err)
		}
		return respond(MessageResponse{Message: "User deleted successfully"}), nil
	})
}
