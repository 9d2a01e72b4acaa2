package mshnet

import (
	"log"
	"reflect"

	"github.com/pkg/errors"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/mshnet/config"
	"github.com/sugarme/mshnet/encoder"
)

// interpolation using `bilinear` algorithm with aligned corners.
// x should be in shape: [BatchSize CHW]
func upsampling(x *ts.Tensor, outSize []int64) *ts.Tensor {
	xSize := x.MustSize()
	if reflect.DeepEqual(xSize[2:], outSize) {
		return x.MustShallowClone()
	}

	return x.MustUpsampleBilinear2d(outSize, true, nil, nil, false)
}

// upscale upsamples x by an integer factor.
func upscale(x *ts.Tensor, factor int64) *ts.Tensor {
	size := x.MustSize()
	return upsampling(x, []int64{size[2] * factor, size[3] * factor})
}

// DecoderStage concatenates an encoder skip with the upsampled coarser
// feature and refines it with a layer of residual blocks.
type DecoderStage struct {
	Layer *nn.SequentialT
}

// ForwardSkip upsamples x by 2, concatenates [skip, x] and forwards.
func (d *DecoderStage) ForwardSkip(x, skip *ts.Tensor, train bool) *ts.Tensor {
	xUp := upscale(x, 2)
	cat := ts.MustCat([]ts.Tensor{*skip, *xUp}, 1)
	xUp.MustDrop()

	out := d.Layer.ForwardT(cat, train)
	cat.MustDrop()

	return out
}

// NewDecoderStage creates a DecoderStage with input cSkip+cIn channels.
func NewDecoderStage(p *nn.Path, cIn, cSkip, cOut, count int64, cfg config.Config) (*DecoderStage, error) {
	layer, err := encoder.MakeLayer(p, cSkip+cIn, cOut, encoder.StandardBlock, count, cfg.Act(), cfg.SpatialKernel)
	if err != nil {
		return nil, err
	}
	return &DecoderStage{layer}, nil
}

// Decoder is the 4-stage decoder of MSHNet.
type Decoder struct {
	// stages[i] outputs channels[i] at the resolution of encoder stage i.
	stages [4]*DecoderStage
}

// NewDecoder creates Decoder. Weights live at `decoder_0`...`decoder_3`.
func NewDecoder(p *nn.Path, cfg config.Config) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ch := cfg.Channels
	counts := [4]int64{1, cfg.Blocks[0], cfg.Blocks[1], cfg.Blocks[2]}
	names := [4]string{"decoder_0", "decoder_1", "decoder_2", "decoder_3"}

	var dec Decoder
	for i := 3; i >= 0; i-- {
		stage, err := NewDecoderStage(p.Sub(names[i]), ch[i+1], ch[i], ch[i], counts[i], cfg)
		if err != nil {
			return nil, errors.Wrapf(err, "build %v", names[i])
		}
		dec.stages[i] = stage
	}

	return &dec, nil
}

// ForwardFeatures forwards encoder features [e0 e1 e2 e3 m] and returns
// decoder outputs [d0 d1 d2 d3], finest first.
func (n *Decoder) ForwardFeatures(features []*ts.Tensor, train bool) []*ts.Tensor {
	if len(features) != 5 {
		log.Fatalf("Expected features of 5 tensors. Got %v\n", len(features))
	}

	// m: [bz 256 H/16 W/16]
	d3 := n.stages[3].ForwardSkip(features[4], features[3], train) // d3 [bz 128 H/8 W/8]
	d2 := n.stages[2].ForwardSkip(d3, features[2], train)          // d2 [bz  64 H/4 W/4]
	d1 := n.stages[1].ForwardSkip(d2, features[1], train)          // d1 [bz  32 H/2 W/2]
	d0 := n.stages[0].ForwardSkip(d1, features[0], train)          // d0 [bz  16 H   W  ]

	return []*ts.Tensor{d0, d1, d2, d3}
}
