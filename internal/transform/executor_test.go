package transform

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/assetpipe/internal/rules"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.Register(Kind{
		Name: "upper",
		Run: func(_ context.Context, in Input, _ rules.Options) (Output, error) {
			return Output{Content: bytes.ToUpper(in.Content), Meta: in.Meta}, nil
		},
	}))
	require.NoError(t, reg.Register(Kind{
		Name:    "suffix",
		Options: []string{"text"},
		Run: func(_ context.Context, in Input, opts rules.Options) (Output, error) {
			text, err := opts.String("text", "!")
			if err != nil {
				return Output{}, err
			}
			return Output{Content: append(bytes.Clone(in.Content), text...), Meta: in.Meta}, nil
		},
	}))
	require.NoError(t, reg.Register(Kind{
		Name: "rename",
		Run: func(_ context.Context, in Input, _ rules.Options) (Output, error) {
			in.Meta.Ext = ".js"
			return Output{Content: in.Content, Meta: in.Meta}, nil
		},
	}))
	require.NoError(t, reg.Register(Kind{
		Name: "fail",
		Run: func(context.Context, Input, rules.Options) (Output, error) {
			return Output{}, errors.New("encoder crashed")
		},
	}))
	return reg
}

func TestRunChainsInOrder(t *testing.T) {
	e := NewExecutor(testRegistry(t))
	rule := &rules.Rule{Name: "r", Steps: []rules.Step{
		{Name: "suffix", Options: rules.Options{"text": "-a"}},
		{Name: "upper"},
		{Name: "suffix", Options: rules.Options{"text": "-b"}},
		{Name: "rename"},
	}}

	res, err := e.Run(context.Background(), Input{ModuleID: "x.jsx", Content: []byte("x")}, rule)
	require.NoError(t, err)
	require.Equal(t, "X-A-b", string(res.Content))
	require.Equal(t, ".js", res.Meta.Ext)
	require.Equal(t, "r", res.Rule)
	require.Len(t, res.Timings, 4)
	require.Empty(t, res.SideOutputs)
}

func TestRunForkKeepsPreStepBytes(t *testing.T) {
	e := NewExecutor(testRegistry(t))
	rule := &rules.Rule{Name: "styles", Steps: []rules.Step{
		{Name: "upper", SideOutput: true, Bundle: "main"},
		{Name: "suffix", Options: rules.Options{"text": "?"}},
	}}

	res, err := e.Run(context.Background(), Input{ModuleID: "a.css", Content: []byte("a{}")}, rule)
	require.NoError(t, err)

	// step 2 received the pre-step-1 bytes, not the side output
	require.Equal(t, "a{}?", string(res.Content))
	require.Len(t, res.SideOutputs, 1)
	require.Equal(t, SideOutput{ModuleID: "a.css", Bundle: "main", Step: "upper", Content: []byte("A{}")}, res.SideOutputs[0])
}

func TestRunPassthrough(t *testing.T) {
	e := NewExecutor(testRegistry(t))
	res, err := e.Run(context.Background(), Input{ModuleID: "robots.txt", Content: []byte("User-agent: *")}, nil)
	require.NoError(t, err)
	require.True(t, res.Passthrough())
	require.Equal(t, "User-agent: *", string(res.Content))
}

func TestRunFailure(t *testing.T) {
	e := NewExecutor(testRegistry(t))

	tests := []struct {
		name  string
		steps []rules.Step
		step  string
		cause error
	}{
		{name: "step error", steps: []rules.Step{{Name: "upper"}, {Name: "fail"}}, step: "fail"},
		{name: "unknown step", steps: []rules.Step{{Name: "missing"}}, step: "missing", cause: ErrUnknownStep},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Run(context.Background(), Input{ModuleID: "m.js"}, &rules.Rule{Name: "r", Steps: tt.steps})
			require.Error(t, err)

			var terr *TransformError
			require.ErrorAs(t, err, &terr)
			require.Equal(t, tt.step, terr.Step)
			require.Equal(t, "m.js", terr.Module)
			require.Equal(t, "r", terr.Rule)
			if tt.cause != nil {
				require.ErrorIs(t, err, tt.cause)
			}
		})
	}
}

func TestRunCancelled(t *testing.T) {
	e := NewExecutor(testRegistry(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, Input{ModuleID: "m.js"}, &rules.Rule{Name: "r", Steps: []rules.Step{{Name: "upper"}}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRegistry(t *testing.T) {
	reg := testRegistry(t)

	require.Error(t, reg.Register(Kind{Name: "upper", Run: func(context.Context, Input, rules.Options) (Output, error) { return Output{}, nil }}))
	require.Error(t, reg.Register(Kind{Name: "norun"}))
	require.Equal(t, []string{"fail", "rename", "suffix", "upper"}, reg.Names())

	require.NoError(t, reg.ValidateStep(rules.Step{Name: "suffix", Options: rules.Options{"text": "x"}}))
	require.ErrorIs(t, reg.ValidateStep(rules.Step{Name: "nope"}), ErrUnknownStep)
	require.ErrorContains(t, reg.ValidateStep(rules.Step{Name: "upper", Options: rules.Options{"level": 3}}), "unrecognised option")
}

func TestStepResultKinds(t *testing.T) {
	in := inlineResult(Output{Content: []byte("a")})
	require.Equal(t, Inline, in.Kind)
	require.Nil(t, in.Side)

	f := forkedResult(Output{Content: []byte("pre")}, SideOutput{Bundle: "main", Content: []byte("side")})
	require.Equal(t, Forked, f.Kind)
	require.Equal(t, "pre", string(f.Inline.Content))
	require.Equal(t, "side", string(f.Side.Content))
	require.Equal(t, "forked", f.Kind.String())
}
