package pdfstruct

import (
	"fmt"
)

// GetArray gets the array object specified by the reference.
func (p *PDF) GetArray(r Reference) (array Array, err error) {
	var obj Object

	if obj, err = p.Get(r); err != nil {
		return nil, err
	}
	if array, ok := obj.(Array); ok {
		return array, nil
	}
	return nil, fmt.Errorf("object %d is %T, not Array", r.Number, obj)
}

// GetDict gets the dict object specified by the reference.
func (p *PDF) GetDict(r Reference) (dict Dict, err error) {
	var obj Object

	if obj, err = p.Get(r); err != nil {
		return nil, err
	}
	if dict, ok := obj.(Dict); ok {
		return dict, nil
	}
	return nil, fmt.Errorf("object %d is %T, not Dict", r.Number, obj)
}

// GetStream gets the stream object specified by the reference.
func (p *PDF) GetStream(r Reference) (stream Stream, err error) {
	var obj Object

	if obj, err = p.Get(r); err != nil {
		return Stream{}, err
	}
	if stream, ok := obj.(Stream); ok {
		return stream, nil
	}
	return Stream{}, fmt.Errorf("object %d is %T, not Stream", r.Number, obj)
}

// Resolve returns obj itself, or the object it refers to if it is a Reference.
func (p *PDF) Resolve(obj Object) (Object, error) {
	if r, ok := obj.(Reference); ok {
		return p.Get(r)
	}
	return obj, nil
}

// Get returns the object specified by the reference.  The object is read from
// the offset the cross-reference table gives for it, and the header found there
// must name the same object.
func (p *PDF) Get(r Reference) (obj Object, err error) {
	if r.Number < 1 || r.Number >= len(p.xref) {
		return nil, fmt.Errorf("object number %d is out of range for document (max %d)", r.Number, len(p.xref)-1)
	}
	xe := &p.xref[r.Number]
	if !xe.inUse {
		return nil, fmt.Errorf("object number %d is on the free list", r.Number)
	}
	if xe.gen != r.Generation {
		return nil, fmt.Errorf("object number %d has generation %d but %d was requested", r.Number, xe.gen, r.Generation)
	}
	if xe.cache != nil {
		return xe.cache, nil
	}
	if xe.offset < 0 || xe.offset >= len(p.data) {
		return nil, fmt.Errorf("object number %d has offset %d outside the file", r.Number, xe.offset)
	}
	var found Reference
	if found, obj, _, err = readIndirect(p.data, xe.offset); err != nil {
		return nil, fmt.Errorf("reading object number %d at offset %d: %s", r.Number, xe.offset, err)
	}
	if found != r {
		return nil, fmt.Errorf("offset %d for object number %d holds object %d %d", xe.offset, r.Number, found.Number, found.Generation)
	}
	xe.cache = obj
	return obj, nil
}
