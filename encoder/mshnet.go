package encoder

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/mshnet/base"
	"github.com/sugarme/mshnet/config"
)

// MSHEncoder is the 4-stage encoder plus bottleneck of MSHNet.
type MSHEncoder struct {
	convInit *nn.Conv2D
	stages   []*nn.SequentialT // encoder_0..encoder_3, middle_layer
}

// NewMSHEncoder creates MSHEncoder. Weights are named after the stage
// (`conv_init`, `encoder_0`...`encoder_3`, `middle_layer`).
func NewMSHEncoder(p *nn.Path, cfg config.Config) (*MSHEncoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ch := cfg.Channels
	act := cfg.Act()

	stemKind := StandardBlock
	if cfg.PartialConv {
		stemKind = PartialConvBlock
	}

	convInit := base.Conv2d(p.Sub("conv_init"), cfg.InputChannels, ch[0], 1, 0, 1)

	type stageDef struct {
		name      string
		cIn, cOut int64
		kind      BlockKind
		count     int64
	}
	defs := []stageDef{
		{"encoder_0", ch[0], ch[0], stemKind, 1},
		{"encoder_1", ch[0], ch[1], StandardBlock, cfg.Blocks[0]},
		{"encoder_2", ch[1], ch[2], StandardBlock, cfg.Blocks[1]},
		{"encoder_3", ch[2], ch[3], StandardBlock, cfg.Blocks[2]},
		{"middle_layer", ch[3], ch[4], StandardBlock, cfg.Blocks[3]},
	}

	stages := make([]*nn.SequentialT, 0, len(defs))
	for _, d := range defs {
		layer, err := MakeLayer(p.Sub(d.name), d.cIn, d.cOut, d.kind, d.count, act, cfg.SpatialKernel)
		if err != nil {
			return nil, errors.Wrapf(err, "build %v", d.name)
		}
		stages = append(stages, layer)
	}

	return &MSHEncoder{
		convInit: convInit,
		stages:   stages,
	}, nil
}

// maxPool halves spatial size: [B C H W] => [B C H/2 W/2]
func maxPool(x *ts.Tensor) *ts.Tensor {
	return x.MustMaxPool2d([]int64{2, 2}, []int64{2, 2}, []int64{0, 0}, []int64{1, 1}, false, false)
}

// ForwardAll implements Encoder interface for MSHEncoder.
// It returns [e0 e1 e2 e3 m] where e_i has spatial size H/2^i and m H/16.
func (e *MSHEncoder) ForwardAll(x *ts.Tensor, train bool) []*ts.Tensor {
	if len(e.stages) != 5 {
		panic(fmt.Sprintf("MSHEncoder: expected 5 stages. Got %v", len(e.stages)))
	}

	x0 := e.convInit.ForwardT(x, train)
	e0 := e.stages[0].ForwardT(x0, train)
	x0.MustDrop()

	features := []*ts.Tensor{e0}
	prev := e0
	for _, stage := range e.stages[1:] {
		pooled := maxPool(prev)
		out := stage.ForwardT(pooled, train)
		pooled.MustDrop()
		features = append(features, out)
		prev = out
	}

	return features
}
