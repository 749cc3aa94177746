package feature

import (
	"errors"
	"fmt"
	"io"

	"github.com/rushteam/learnkit/core"
	"github.com/rushteam/learnkit/label"
	"github.com/rushteam/learnkit/pkg/modelio"
)

// maxCachedFeatures 限制缓存中单个 namespace 的特征数。
const maxCachedFeatures = 1 << 26

// CacheExample 把样本写入缓存流：label（经描述符的 CacheLabel）、tag、各 namespace 的特征。
func CacheExample(w *modelio.Writer, labels label.Parser, ec *core.Example) (int, error) {
	total, err := labels.CacheLabel(ec.Label, &ec.ReductionFeatures, w, "label")
	if err != nil {
		return total, err
	}
	n, err := w.WriteString(ec.Tag, "tag")
	total += n
	if err != nil {
		return total, err
	}
	n, err = modelio.WriteField(w, uint32(len(ec.Namespaces)), "namespaces.size")
	total += n
	if err != nil {
		return total, err
	}
	for i := range ec.Namespaces {
		ns := &ec.Namespaces[i]
		prefix := ""
		if w.Text() {
			prefix = fmt.Sprintf("ns[%d]", i)
		}
		n, err = modelio.WriteField(w, ns.Name, prefix+".name")
		total += n
		if err != nil {
			return total, err
		}
		n, err = modelio.WriteField(w, uint32(ns.Features.Len()), prefix+".size")
		total += n
		if err != nil {
			return total, err
		}
		for j, idx := range ns.Features.Indices {
			n, err = modelio.WriteField(w, idx, prefix+".index")
			total += n
			if err != nil {
				return total, err
			}
			n, err = modelio.WriteField(w, ns.Features.Values[j], prefix+".value")
			total += n
			if err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// ReadCachedExample 从缓存流读回一个样本到 ec（ec 先被 Reset，label 对象被复用）。
// 流恰好在样本边界结束时返回 (0, io.EOF)。
func ReadCachedExample(r *modelio.Reader, labels label.Parser, ec *core.Example) (int, error) {
	ec.Reset()
	if ec.Label == nil || ec.Label.Type() != labels.Type() {
		ec.Label = labels.NewLabel()
	} else {
		labels.DefaultLabel(ec.Label)
	}

	total, err := labels.ReadCachedLabel(ec.Label, &ec.ReductionFeatures, r, "label")
	if err != nil {
		if total == 0 && errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		return total, err
	}
	ec.Weight = labels.Weight(ec.Label, &ec.ReductionFeatures)

	tag, n, err := r.ReadString("tag")
	total += n
	if err != nil {
		return total, err
	}
	ec.Tag = tag

	var size uint32
	n, err = modelio.ReadField(r, &size, "namespaces.size")
	total += n
	if err != nil {
		return total, err
	}
	for i := uint32(0); i < size; i++ {
		prefix := ""
		if r.Text() {
			prefix = fmt.Sprintf("ns[%d]", i)
		}
		var name uint8
		n, err = modelio.ReadField(r, &name, prefix+".name")
		total += n
		if err != nil {
			return total, err
		}
		var count uint32
		n, err = modelio.ReadField(r, &count, prefix+".size")
		total += n
		if err != nil {
			return total, err
		}
		if count > maxCachedFeatures {
			return total, core.Errorf(core.ModuleFeature, core.ErrorCodeInvalidInput,
				"cached namespace %q has %d features", name, count)
		}
		fs := ec.AddNamespace(name)
		for j := uint32(0); j < count; j++ {
			var (
				idx   uint64
				value float32
			)
			n, err = modelio.ReadField(r, &idx, prefix+".index")
			total += n
			if err != nil {
				return total, err
			}
			n, err = modelio.ReadField(r, &value, prefix+".value")
			total += n
			if err != nil {
				return total, err
			}
			fs.Push(idx, value)
		}
	}
	return total, nil
}
