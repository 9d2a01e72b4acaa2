package base

import "github.com/sugarme/gotch/nn"

// NewSegmentationHead creates a biased conv with same padding that maps cIn
// feature channels to cOut mask channels.
func NewSegmentationHead(p *nn.Path, cIn, cOut, ksize int64) *nn.Conv2D {
	return Conv2d(p, cIn, cOut, ksize, ksize/2, 1)
}
