package base

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// Identity is a nn.Module placeholder.
// It forwards the input tensor as such.
type Identity struct{}

// Forward implement nn.Module for Identity struct
func (i *Identity) Forward(x *ts.Tensor) *ts.Tensor {
	return x.MustShallowClone()
}

// Forward implement nn.ModuleT for Identity struct.
func (i *Identity) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return x.MustShallowClone()
}

// NewIdentity creates a new Identity struct.
func NewIdentity() *Identity {
	return &Identity{}
}

// Activation names a nonlinearity applied after a normalized convolution.
type Activation int

const (
	ActSiLU Activation = iota // x * sigmoid(x)
	ActReLU
	ActSigmoid
	ActIdentity
)

// DefaultActivation is the activation used when none is given.
const DefaultActivation = ActSiLU

var activationNames = map[string]Activation{
	"silu":     ActSiLU,
	"relu":     ActReLU,
	"sigmoid":  ActSigmoid,
	"identity": ActIdentity,
	"none":     ActIdentity,
}

// ParseActivation maps a name such as "silu" or "relu" to an Activation.
func ParseActivation(name string) (Activation, error) {
	act, ok := activationNames[name]
	if !ok {
		return ActIdentity, errors.Errorf("unknown activation %q", name)
	}
	return act, nil
}

// String implements fmt.Stringer.
func (a Activation) String() string {
	switch a {
	case ActSiLU:
		return "silu"
	case ActReLU:
		return "relu"
	case ActSigmoid:
		return "sigmoid"
	case ActIdentity:
		return "identity"
	default:
		return fmt.Sprintf("Activation(%d)", int(a))
	}
}

// Apply applies activation to x. If del is true, x is dropped.
func (a Activation) Apply(x *ts.Tensor, del bool) *ts.Tensor {
	switch a {
	case ActSiLU:
		return x.MustSilu(del)
	case ActReLU:
		return x.MustRelu(del)
	case ActSigmoid:
		return x.MustSigmoid(del)
	default:
		if del {
			return x
		}
		return x.MustShallowClone()
	}
}

// Autopad returns the padding that keeps spatial size for a kernel k with
// dilation d. An explicit padding p (>= 0) is returned as such.
func Autopad(k, p, d int64) int64 {
	if p >= 0 {
		return p
	}
	if d > 1 {
		k = d*(k-1) + 1
	}
	return k / 2
}

// Conv2d creates Conv2D module.
func Conv2d(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// Conv2dNoBias creates Conv2D with no bias.
func Conv2dNoBias(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Bias = false
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// ConvOption configures a ConvBnAct.
type ConvOption func(*convOptions)

type convOptions struct {
	kh, kw   int64
	stride   int64
	padH     int64
	padW     int64
	groups   int64
	dilation int64
	act      Activation
}

func defaultConvOptions() *convOptions {
	return &convOptions{
		kh:       1,
		kw:       1,
		stride:   1,
		padH:     -1,
		padW:     -1,
		groups:   1,
		dilation: 1,
		act:      DefaultActivation,
	}
}

// WithKernel sets a square kernel size.
func WithKernel(k int64) ConvOption {
	return func(o *convOptions) {
		o.kh, o.kw = k, k
	}
}

// WithKernel2 sets a (height, width) kernel size.
func WithKernel2(kh, kw int64) ConvOption {
	return func(o *convOptions) {
		o.kh, o.kw = kh, kw
	}
}

// WithStride sets convolution stride.
func WithStride(s int64) ConvOption {
	return func(o *convOptions) {
		o.stride = s
	}
}

// WithPadding sets an explicit padding on both spatial axes.
func WithPadding(pad int64) ConvOption {
	return func(o *convOptions) {
		o.padH, o.padW = pad, pad
	}
}

// WithGroups sets the number of convolution groups.
func WithGroups(g int64) ConvOption {
	return func(o *convOptions) {
		o.groups = g
	}
}

// WithDilation sets convolution dilation.
func WithDilation(d int64) ConvOption {
	return func(o *convOptions) {
		o.dilation = d
	}
}

// WithActivation sets the activation applied after batch norm.
func WithActivation(act Activation) ConvOption {
	return func(o *convOptions) {
		o.act = act
	}
}

// ConvBnAct is a convolution (no bias) followed by batch norm and an activation.
type ConvBnAct struct {
	Conv *nn.Conv2D
	Bn   *nn.BatchNorm
	Act  Activation
}

// NewConvBnAct creates a ConvBnAct. Weights live at `p/conv` and `p/bn`.
// Default is a 1x1 kernel, stride 1, same padding and SiLU.
func NewConvBnAct(p *nn.Path, cIn, cOut int64, opts ...ConvOption) *ConvBnAct {
	o := defaultConvOptions()
	for _, opt := range opts {
		opt(o)
	}

	config := nn.DefaultConv2DConfig()
	config.Bias = false
	config.Stride = []int64{o.stride, o.stride}
	config.Padding = []int64{Autopad(o.kh, o.padH, o.dilation), Autopad(o.kw, o.padW, o.dilation)}
	config.Dilation = []int64{o.dilation, o.dilation}
	config.Groups = o.groups

	var conv *nn.Conv2D
	if o.kh == o.kw {
		conv = nn.NewConv2D(p.Sub("conv"), cIn, cOut, o.kh, config)
	} else {
		conv = nn.NewConv(p.Sub("conv"), cIn, cOut, []int64{o.kh, o.kw}, config).(*nn.Conv2D)
	}
	bn := nn.BatchNorm2D(p.Sub("bn"), cOut, nn.DefaultBatchNormConfig())

	return &ConvBnAct{
		Conv: conv,
		Bn:   bn,
		Act:  o.act,
	}
}

// ForwardT implements ts.ModuleT for ConvBnAct.
func (c *ConvBnAct) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	conv := c.Conv.ForwardT(x, train)
	bn := c.Bn.ForwardT(conv, train)
	conv.MustDrop()

	return c.Act.Apply(bn, true)
}

// ForwardFuse skips batch norm. Use it when bn statistics have been folded
// into conv weights.
func (c *ConvBnAct) ForwardFuse(x *ts.Tensor) *ts.Tensor {
	conv := c.Conv.Forward(x)
	return c.Act.Apply(conv, true)
}
