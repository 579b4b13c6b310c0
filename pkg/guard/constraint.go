package guard

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/cel-go/cel"

	"github.com/Mindburn-Labs/assetguard/pkg/reason"
)

// activation is the data a constraint expression sees as `call`.
type activation struct {
	sender       common.Address
	target       common.Address
	selector     string
	kind         string
	family       string
	value        *big.Int
	argsLen      int
	amountIn     *big.Int
	minAmountOut *big.Int
}

func wei(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

func (a activation) vars() map[string]any {
	return map[string]any{
		"call": map[string]any{
			"sender":         a.sender.Hex(),
			"target":         a.target.Hex(),
			"selector":       a.selector,
			"kind":           a.kind,
			"family":         a.family,
			"value":          wei(a.value),
			"args_len":       int64(a.argsLen),
			"amount_in":      wei(a.amountIn),
			"min_amount_out": wei(a.minAmountOut),
		},
		"now": time.Now().Unix(),
	}
}

type constraintEnv struct {
	env *cel.Env
}

func newConstraintEnv() (*constraintEnv, error) {
	env, err := cel.NewEnv(
		cel.Variable("call", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("now", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &constraintEnv{env: env}, nil
}

type constraint struct {
	expr string
	prg  cel.Program
}

func (e *constraintEnv) compile(expr string) (*constraint, error) {
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression must be boolean, got %s", ast.OutputType())
	}
	prg, err := e.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	return &constraint{expr: expr, prg: prg}, nil
}

// eval fails closed: an evaluation error denies like a false result.
func (c *constraint) eval(a activation) error {
	out, _, err := c.prg.Eval(a.vars())
	if err != nil {
		return reason.Newf(reason.ConstraintViolated, "%s: %v", c.expr, err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool || !ok {
		return reason.New(reason.ConstraintViolated, c.expr)
	}
	return nil
}
