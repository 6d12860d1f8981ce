package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/taskbot/internal/domain"
)

type ListEmployeesOutput struct {
	Body []*domain.Employee
}

type EmployeeInput struct {
	Phone string `path:"phone" minLength:"1" doc:"Employee phone number"`
}

type EmployeeView struct {
	Employee *domain.Employee        `json:"employee"`
	Links    []*domain.MessengerLink `json:"links"`
}

type GetEmployeeOutput struct {
	Body *EmployeeView
}

func RegisterEmployeeRoutes(api huma.API, dir Directory) {
	huma.Register(api, huma.Operation{
		OperationID: "list-employees",
		Method:      http.MethodGet,
		Path:        "/employees",
		Summary:     "List the whole directory",
		Tags:        []string{"Employees"},
	}, func(ctx context.Context, _ *struct{}) (*ListEmployeesOutput, error) {
		all, err := dir.ListAll(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list employees", err)
		}
		if all == nil {
			all = []*domain.Employee{}
		}
		return &ListEmployeesOutput{Body: all}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-employee",
		Method:      http.MethodGet,
		Path:        "/employees/{phone}",
		Summary:     "Get an employee and their messenger links",
		Tags:        []string{"Employees"},
	}, func(ctx context.Context, input *EmployeeInput) (*GetEmployeeOutput, error) {
		emp, err := findEmployee(ctx, dir, input.Phone)
		if err != nil {
			return nil, err
		}

		links, err := dir.ListMessengerLinks(ctx, emp.Phone)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list messenger links", err)
		}
		if links == nil {
			links = []*domain.MessengerLink{}
		}
		return &GetEmployeeOutput{Body: &EmployeeView{Employee: emp, Links: links}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-subordinates",
		Method:      http.MethodGet,
		Path:        "/employees/{phone}/subordinates",
		Summary:     "List everyone below an employee in the hierarchy",
		Tags:        []string{"Employees"},
	}, func(ctx context.Context, input *EmployeeInput) (*ListEmployeesOutput, error) {
		emp, err := findEmployee(ctx, dir, input.Phone)
		if err != nil {
			return nil, err
		}

		subs, err := domain.Subordinates(ctx, dir, emp.Phone)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to walk hierarchy", err)
		}
		if subs == nil {
			subs = []*domain.Employee{}
		}
		return &ListEmployeesOutput{Body: subs}, nil
	})
}

func findEmployee(ctx context.Context, dir Directory, phone string) (*domain.Employee, error) {
	emp, err := dir.FindByPhoneOrEmail(ctx, phone)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, huma.Error404NotFound("employee not found")
		}
		return nil, huma.Error500InternalServerError("failed to load employee", err)
	}
	return emp, nil
}
