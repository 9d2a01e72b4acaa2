package encoder

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/mshnet/base"
)

// BlockKind selects the main path of a ResidualBlock.
type BlockKind int

const (
	// StandardBlock: conv3x3 - bn - relu - conv3x3 - bn.
	StandardBlock BlockKind = iota
	// PartialConvBlock: PConv(k=4) - PConv(k=3).
	PartialConvBlock
)

func (k BlockKind) String() string {
	switch k {
	case StandardBlock:
		return "standard"
	case PartialConvBlock:
		return "pconv"
	default:
		return fmt.Sprintf("BlockKind(%d)", int(k))
	}
}

// shortcut projects input to cOut channels when stride or width changes.
func shortcut(path *nn.Path, cIn, cOut, stride int64) ts.ModuleT {
	if stride != 1 || cIn != cOut {
		seq := nn.SeqT()
		seq.Add(base.Conv2d(path.Sub("0"), cIn, cOut, 1, 0, stride))
		seq.Add(nn.BatchNorm2D(path.Sub("1"), cOut, nn.DefaultBatchNormConfig()))

		return seq
	}
	return base.NewIdentity()
}

// ResidualBlock is a residual block with channel and spatial attention
// applied to the main path before the residual sum.
type ResidualBlock struct {
	Kind BlockKind

	// StandardBlock
	Conv1 *nn.Conv2D
	Bn1   *nn.BatchNorm
	Conv2 *nn.Conv2D
	Bn2   *nn.BatchNorm

	// PartialConvBlock
	PConv1 *base.PConv
	PConv2 *base.PConv

	Ca       *base.ChannelAttention
	Sa       *base.SpatialAttention
	Shortcut ts.ModuleT
}

// NewResidualBlock creates a ResidualBlock.
//
// For PartialConvBlock, act is the activation used inside both PConv units
// and cOut must be divisible by 4.
func NewResidualBlock(path *nn.Path, cIn, cOut, stride int64, kind BlockKind, act base.Activation, saKernel int64) (*ResidualBlock, error) {
	sa, err := base.NewSpatialAttention(path.Sub("sa"), saKernel)
	if err != nil {
		return nil, err
	}

	b := &ResidualBlock{
		Kind:     kind,
		Ca:       base.NewChannelAttention(path.Sub("ca"), cOut),
		Sa:       sa,
		Shortcut: shortcut(path.Sub("shortcut"), cIn, cOut, stride),
	}

	switch kind {
	case StandardBlock:
		b.Conv1 = base.Conv2d(path.Sub("conv1"), cIn, cOut, 3, 1, stride)
		b.Bn1 = nn.BatchNorm2D(path.Sub("bn1"), cOut, nn.DefaultBatchNormConfig())
		b.Conv2 = base.Conv2d(path.Sub("conv2"), cOut, cOut, 3, 1, 1)
		b.Bn2 = nn.BatchNorm2D(path.Sub("bn2"), cOut, nn.DefaultBatchNormConfig())
	case PartialConvBlock:
		if b.PConv1, err = base.NewPConv(path.Sub("conv1"), cIn, cOut, 4, stride, act); err != nil {
			return nil, err
		}
		// second unit keeps resolution so the residual sum lines up
		if b.PConv2, err = base.NewPConv(path.Sub("conv2"), cOut, cOut, 3, 1, act); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("unsupported block kind: %v", kind)
	}

	return b, nil
}

func (b *ResidualBlock) mainPath(x *ts.Tensor, train bool) *ts.Tensor {
	if b.Kind == PartialConvBlock {
		p1 := b.PConv1.ForwardT(x, train)
		p2 := b.PConv2.ForwardT(p1, train)
		p1.MustDrop()
		return p2
	}

	c1 := b.Conv1.ForwardT(x, train)
	bn1Ts := b.Bn1.ForwardT(c1, train)
	c1.MustDrop()
	relu := bn1Ts.MustRelu(true)
	c2 := b.Conv2.ForwardT(relu, train)
	relu.MustDrop()
	bn2Ts := b.Bn2.ForwardT(c2, train)
	c2.MustDrop()

	return bn2Ts
}

// ForwardT implements ts.ModuleT for ResidualBlock.
func (b *ResidualBlock) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	out := b.mainPath(x, train)
	caOut := base.Gate(b.Ca, out, train)
	out.MustDrop()
	saOut := base.Gate(b.Sa, caOut, train)
	caOut.MustDrop()

	residual := b.Shortcut.ForwardT(x, train)
	sum := saOut.MustAdd(residual, true)
	residual.MustDrop()

	return sum.MustRelu(true)
}

// MakeLayer builds a stack of count residual blocks. The first block maps
// cIn to cOut using kind, the rest are cOut to cOut standard blocks.
func MakeLayer(path *nn.Path, cIn, cOut int64, kind BlockKind, count int64, act base.Activation, saKernel int64) (*nn.SequentialT, error) {
	if count < 1 {
		return nil, errors.Errorf("MakeLayer: block count must be positive. Got %v", count)
	}

	layer := nn.SeqT()
	first, err := NewResidualBlock(path.Sub("0"), cIn, cOut, 1, kind, act, saKernel)
	if err != nil {
		return nil, err
	}
	layer.Add(first)
	for blockIndex := 1; blockIndex < int(count); blockIndex++ {
		block, err := NewResidualBlock(path.Sub(fmt.Sprint(blockIndex)), cOut, cOut, 1, StandardBlock, act, saKernel)
		if err != nil {
			return nil, err
		}
		layer.Add(block)
	}

	return layer, nil
}
