package service

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"go.uber.org/zap"

	"github.com/noah-isme/nodues-api/internal/models"
)

// DefaultDepartmentWritePolicy lets administrators decide for any department and faculty for their own.
const DefaultDepartmentWritePolicy = `role in ["SUPERADMIN", "ADMIN"] || (role == "FACULTY" && actorDepartment == departmentKey)`

// DepartmentPolicy decides whether an actor may record a decision for a department.
type DepartmentPolicy struct {
	expr    string
	program cel.Program
	logger  *zap.Logger
}

// NewDepartmentPolicy compiles the CEL expression. An empty expression selects the default policy.
// The expression sees the string variables role, actorDepartment and departmentKey and must yield a bool.
func NewDepartmentPolicy(expr string, logger *zap.Logger) (*DepartmentPolicy, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	expr = strings.TrimSpace(expr)
	if expr == "" {
		expr = DefaultDepartmentWritePolicy
	}

	env, err := cel.NewEnv(
		cel.Variable("role", cel.StringType),
		cel.Variable("actorDepartment", cel.StringType),
		cel.Variable("departmentKey", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create policy environment: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile department policy: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("department policy must evaluate to bool, got %s", ast.OutputType())
	}
	program, err := env.Program(ast, cel.CostLimit(10000))
	if err != nil {
		return nil, fmt.Errorf("build department policy program: %w", err)
	}
	return &DepartmentPolicy{expr: expr, program: program, logger: logger}, nil
}

// Expression returns the compiled expression source.
func (p *DepartmentPolicy) Expression() string {
	return p.expr
}

// CanActorWrite evaluates the policy. Evaluation errors deny.
func (p *DepartmentPolicy) CanActorWrite(role models.UserRole, actorDepartment, departmentKey string) bool {
	out, _, err := p.program.Eval(map[string]any{
		"role":            string(role),
		"actorDepartment": strings.ToLower(strings.TrimSpace(actorDepartment)),
		"departmentKey":   strings.ToLower(strings.TrimSpace(departmentKey)),
	})
	if err != nil {
		p.logger.Warn("department policy evaluation failed", zap.String("role", string(role)), zap.String("department", departmentKey), zap.Error(err))
		return false
	}
	allowed, ok := out.Value().(bool)
	return ok && allowed
}
