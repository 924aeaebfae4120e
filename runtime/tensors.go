package runtime

import (
	"github.com/orteaf/go-orteaf/base"
	"github.com/orteaf/go-orteaf/dtypes"
	"github.com/orteaf/go-orteaf/orterr"
)

// TensorImpl is a pooled dense tensor implementation: a shape over a
// type-erased storage lease. Shared: tensor views clone the impl.
type TensorImpl struct {
	Storage AnyStorageLease
	DType   dtypes.DType
	Shape   []int
	Count   int
}

// TensorRequest shapes a dense tensor on one device.
type TensorRequest struct {
	Device base.Handle[Device]
	DType  dtypes.DType
	Shape  []int
}

func elementCount(shape []int) int {
	count := 1
	for _, d := range shape {
		count *= d
	}
	return count
}

func newTensorManager(storages *Manager[Storage, StorageRequest]) *Manager[TensorImpl, TensorRequest] {
	return NewManager("tensor impl manager", Shared, Ops[TensorImpl, TensorRequest]{
		Validate: func(r TensorRequest) error {
			if !r.DType.IsSupported() {
				return orterr.Errorf(orterr.InvalidArgument, "unsupported dtype %s", r.DType)
			}
			for i, d := range r.Shape {
				if d <= 0 {
					return orterr.Errorf(orterr.InvalidArgument, "shape dimension %d must be positive, got %d", i, d)
				}
			}
			return nil
		},
		Create: func(p *TensorImpl, r TensorRequest) error {
			count := elementCount(r.Shape)
			storage, err := storages.Acquire(StorageRequest{
				Device: r.Device,
				DType:  r.DType,
				Count:  count,
			})
			if err != nil {
				return err
			}
			*p = TensorImpl{
				Storage: EraseStorageLease(storage),
				DType:   r.DType,
				Shape:   append([]int(nil), r.Shape...),
				Count:   count,
			}
			return nil
		},
		Destroy: func(p *TensorImpl) {
			p.Storage.Release()
			*p = TensorImpl{}
		},
	})
}
