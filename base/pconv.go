package base

import (
	"github.com/pkg/errors"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// PConv is a partial (pinwheel-shaped) convolution.
//
// Input is zero padded four times, each time asymmetrically on one side.
// A shared 1xk conv runs over the two width-padded views and a shared kx1
// conv over the two height-padded views. The four cOut/4 channel maps are
// concatenated and fused by a 2x2 conv which trims the extra padded pixel.
type PConv struct {
	pads [4][]int64 // left, right, top, bottom
	Cw   *ConvBnAct
	Ch   *ConvBnAct
	Cat  *ConvBnAct
}

// NewPConv creates a PConv. cOut must be divisible by 4.
func NewPConv(p *nn.Path, cIn, cOut, k, stride int64, act Activation) (*PConv, error) {
	if cOut%4 != 0 {
		return nil, errors.Errorf("PConv: output channels must be divisible by 4. Got %v", cOut)
	}

	pads := [4][]int64{
		{k, 0, 1, 0},
		{0, k, 0, 1},
		{0, 1, k, 0},
		{1, 0, 0, k},
	}

	cw := NewConvBnAct(p.Sub("cw"), cIn, cOut/4, WithKernel2(1, k), WithStride(stride), WithPadding(0), WithActivation(act))
	ch := NewConvBnAct(p.Sub("ch"), cIn, cOut/4, WithKernel2(k, 1), WithStride(stride), WithPadding(0), WithActivation(act))
	cat := NewConvBnAct(p.Sub("cat"), cOut, cOut, WithKernel(2), WithStride(1), WithPadding(0), WithActivation(act))

	return &PConv{
		pads: pads,
		Cw:   cw,
		Ch:   ch,
		Cat:  cat,
	}, nil
}

// MustPConv is NewPConv that panics on error.
func MustPConv(p *nn.Path, cIn, cOut, k, stride int64, act Activation) *PConv {
	pc, err := NewPConv(p, cIn, cOut, k, stride, act)
	if err != nil {
		panic(err)
	}
	return pc
}

// ForwardT implements ts.ModuleT for PConv.
func (pc *PConv) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	var outs [4]*ts.Tensor
	for i, pad := range pc.pads {
		padded := x.MustConstantPadNd(pad, false)
		if i < 2 {
			outs[i] = pc.Cw.ForwardT(padded, train)
		} else {
			outs[i] = pc.Ch.ForwardT(padded, train)
		}
		padded.MustDrop()
	}

	// [B cOut/4 H' W'] x 4 => [B cOut H' W']
	cat := ts.MustCat([]ts.Tensor{*outs[0], *outs[1], *outs[2], *outs[3]}, 1)
	for _, o := range outs {
		o.MustDrop()
	}

	res := pc.Cat.ForwardT(cat, train)
	cat.MustDrop()

	return res
}
