package base

import (
	"github.com/pkg/errors"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// ChannelReduction is the bottleneck ratio of ChannelAttention.
const ChannelReduction int64 = 16

// ChannelAttention computes a per-channel gate from global average and max
// pooled descriptors passed through a shared bottleneck.
// Ref. https://arxiv.org/abs/1807.06521
type ChannelAttention struct {
	Fc1 *nn.Conv2D
	Fc2 *nn.Conv2D
}

// NewChannelAttention creates ChannelAttention for cIn channels.
func NewChannelAttention(p *nn.Path, cIn int64) *ChannelAttention {
	fc1 := Conv2dNoBias(p.Sub("fc1"), cIn, cIn/ChannelReduction, 1, 0, 1)
	fc2 := Conv2dNoBias(p.Sub("fc2"), cIn/ChannelReduction, cIn, 1, 0, 1)

	return &ChannelAttention{fc1, fc2}
}

func (m *ChannelAttention) bottleneck(x *ts.Tensor, train bool) *ts.Tensor {
	h := m.Fc1.ForwardT(x, train)
	relu := h.MustRelu(true)
	out := m.Fc2.ForwardT(relu, train)
	relu.MustDrop()

	return out
}

// ForwardT implements ts.ModuleT. It returns gate of shape [B C 1 1].
func (m *ChannelAttention) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	avgPool := x.MustAdaptiveAvgPool2d([]int64{1, 1}, false)
	maxPool := x.MustAmax([]int64{2, 3}, true, false)

	avgOut := m.bottleneck(avgPool, train)
	avgPool.MustDrop()
	maxOut := m.bottleneck(maxPool, train)
	maxPool.MustDrop()

	sum := avgOut.MustAdd(maxOut, true)
	maxOut.MustDrop()

	return sum.MustSigmoid(true)
}

// SpatialAttention computes a per-pixel gate from channel-wise mean and max.
type SpatialAttention struct {
	Conv1 *nn.Conv2D
}

// NewSpatialAttention creates SpatialAttention. ksize must be 3 or 7.
func NewSpatialAttention(p *nn.Path, ksize int64) (*SpatialAttention, error) {
	var padding int64
	switch ksize {
	case 3:
		padding = 1
	case 7:
		padding = 3
	default:
		return nil, errors.Errorf("SpatialAttention: kernel size must be 3 or 7. Got %v", ksize)
	}

	conv1 := Conv2dNoBias(p.Sub("conv1"), 2, 1, ksize, padding, 1)
	return &SpatialAttention{conv1}, nil
}

// ForwardT implements ts.ModuleT. It returns gate of shape [B 1 H W].
func (m *SpatialAttention) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	avgOut := x.MustMeanDim([]int64{1}, true, x.DType(), false)
	maxOut := x.MustAmax([]int64{1}, true, false)
	cat := ts.MustCat([]ts.Tensor{*avgOut, *maxOut}, 1)
	avgOut.MustDrop()
	maxOut.MustDrop()

	conv := m.Conv1.ForwardT(cat, train)
	cat.MustDrop()

	return conv.MustSigmoid(true)
}

// Gate multiplies x by the gate computed by attn from x.
func Gate(attn ts.ModuleT, x *ts.Tensor, train bool) *ts.Tensor {
	g := attn.ForwardT(x, train)
	res := x.MustMul(g, false)
	g.MustDrop()

	return res
}
