package base_test

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/mshnet/base"
)

func TestPConvShape(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)

	pc, err := base.NewPConv(vs.Root().Sub("pconv"), 16, 32, 4, 1, base.ActSiLU)
	if err != nil {
		t.Fatal(err)
	}

	x := ts.MustRand([]int64{1, 16, 64, 64}, gotch.Float, gotch.CPU)
	y := pc.ForwardT(x, false)

	want := []int64{1, 32, 64, 64}
	if got := y.MustSize(); !reflect.DeepEqual(got, want) {
		t.Errorf("want %v, got %v", want, got)
	}
	x.MustDrop()
	y.MustDrop()
}

func TestPConvKernelThreeAndStride(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	root := vs.Root()

	tests := []struct {
		k, s int64
		want []int64
	}{
		{3, 1, []int64{2, 8, 32, 32}},
		{4, 2, []int64{2, 8, 16, 16}},
	}

	x := ts.MustRand([]int64{2, 4, 32, 32}, gotch.Float, gotch.CPU)
	defer x.MustDrop()
	for i, tt := range tests {
		pc := base.MustPConv(root.Sub(fmt.Sprint(i)), 4, 8, tt.k, tt.s, base.ActSiLU)
		ts.NoGrad(func() {
			y := pc.ForwardT(x, true)
			if got := y.MustSize(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("k=%v s=%v: want %v, got %v", tt.k, tt.s, tt.want, got)
			}
			y.MustDrop()
		})
	}
}

func TestPConvChannelsDivisibleByFour(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	if _, err := base.NewPConv(vs.Root(), 16, 30, 4, 1, base.ActSiLU); err == nil {
		t.Error("want error when output channels are not divisible by 4")
	}
}

func TestPConvSharesDirectionalWeights(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	base.MustPConv(vs.Root().Sub("p"), 16, 32, 4, 1, base.ActSiLU)

	vars := vs.Variables()
	tests := map[string][]int64{
		"p.cw.conv.weight":  {8, 16, 1, 4},
		"p.ch.conv.weight":  {8, 16, 4, 1},
		"p.cat.conv.weight": {32, 32, 2, 2},
	}
	for name, want := range tests {
		v, ok := vars[name]
		if !ok {
			t.Errorf("missing variable %v", name)
			continue
		}
		if got := v.MustSize(); !reflect.DeepEqual(got, want) {
			t.Errorf("%v: want %v, got %v", name, want, got)
		}
	}
}
