// Package mshnet implements MSHNet, a U-shaped residual attention network
// for infrared small target segmentation.
//
// Ref: https://arxiv.org/abs/2403.19366
package mshnet

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/mshnet/base"
	"github.com/sugarme/mshnet/config"
	"github.com/sugarme/mshnet/encoder"
)

// MSHNet is an encoder-decoder segmentation model with multi-scale heads.
type MSHNet struct {
	encoder encoder.Encoder
	decoder *Decoder
	outputs [4]*nn.Conv2D // output_i maps decoder stage i to 1 channel
	final   *nn.Conv2D
}

// NewMSHNet creates MSHNet from cfg.
func NewMSHNet(p *nn.Path, cfg config.Config) (*MSHNet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	enc, err := encoder.NewMSHEncoder(p, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "encoder")
	}
	dec, err := NewDecoder(p, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "decoder")
	}

	var outputs [4]*nn.Conv2D
	for i := range outputs {
		outputs[i] = base.NewSegmentationHead(p.Sub(fmt.Sprintf("output_%d", i)), cfg.Channels[i], 1, 1)
	}
	final := base.NewSegmentationHead(p.Sub("final"), 4, 1, 3)

	return &MSHNet{
		encoder: enc,
		decoder: dec,
		outputs: outputs,
		final:   final,
	}, nil
}

// DefaultMSHNet creates MSHNet with the reference topology for inChannels.
func DefaultMSHNet(p *nn.Path, inChannels int64) *MSHNet {
	cfg := config.Default()
	cfg.InputChannels = inChannels
	net, err := NewMSHNet(p, cfg)
	if err != nil {
		panic(err)
	}
	return net
}

// Forward runs the network on x of shape [B C H W], H and W divisible by 16.
//
// With warm false it returns no auxiliary masks and a [B 1 H W] logit map.
// With warm true it also returns masks [m0 m1 m2 m3] at H, H/2, H/4, H/8 and
// the output is their fusion at H.
func (n *MSHNet) Forward(x *ts.Tensor, warm, train bool) ([]*ts.Tensor, *ts.Tensor) {
	features := n.encoder.ForwardAll(x, train)
	decoded := n.decoder.ForwardFeatures(features, train)
	for _, f := range features {
		f.MustDrop()
	}
	defer func() {
		for _, d := range decoded {
			d.MustDrop()
		}
	}()

	if !warm {
		output := n.outputs[0].ForwardT(decoded[0], train)
		return []*ts.Tensor{}, output
	}

	masks := make([]*ts.Tensor, 4)
	for i, d := range decoded {
		masks[i] = n.outputs[i].ForwardT(d, train)
	}

	// NOTE: scale factor doubles per stage: m1 x2, m2 x4, m3 x8
	up1 := upscale(masks[1], 2)
	up2 := upscale(masks[2], 4)
	up3 := upscale(masks[3], 8)
	cat := ts.MustCat([]ts.Tensor{*masks[0], *up1, *up2, *up3}, 1)
	up1.MustDrop()
	up2.MustDrop()
	up3.MustDrop()

	output := n.final.ForwardT(cat, train)
	cat.MustDrop()

	return masks, output
}

// ForwardT implements ts.ModuleT for MSHNet. It returns the single map.
func (n *MSHNet) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	_, output := n.Forward(x, false, train)
	return output
}
