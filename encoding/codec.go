package encoding

import (
	"reflect"
	"sync"
	"unsafe"

	"github.com/modern-go/reflect2"
)

type handler = func(Stream, unsafe.Pointer) error

type codec struct {
	decode handler
	encode handler
	size   structSize
}

var codecs sync.Map

// Size returns the encoded size of val, which may be a value or a pointer
// to one.
func Size(val any) (int, error) {
	typ := reflect2.TypeOf(val)
	if typ == nil {
		return 0, ErrTypeUnsupported
	}
	if typ.Kind() == reflect.Pointer {
		typ = typ.(reflect2.PtrType).Elem()
	}
	c, err := getCodec(typ)
	if err != nil {
		return 0, err
	}
	return c.size.Size(), nil
}

// Decode fills the value val points to from stream.
func Decode(stream Stream, val any) error {
	typ := reflect2.TypeOf(val)
	if typ == nil || typ.Kind() != reflect.Pointer {
		return ErrNotPointer
	}
	ptr := reflect2.PtrOf(val)
	if ptr == nil {
		return ErrNotPointer
	}
	c, err := getCodec(typ.(reflect2.PtrType).Elem())
	if err != nil {
		return err
	}
	return c.decode(stream, ptr)
}

// Encode writes val, a value or a pointer to one, to stream.
func Encode(stream Stream, val any) error {
	typ := reflect2.TypeOf(val)
	if typ == nil {
		return ErrTypeUnsupported
	}
	ptr := reflect2.PtrOf(val)
	if typ.Kind() == reflect.Pointer {
		if ptr == nil {
			return ErrNotPointer
		}
		typ = typ.(reflect2.PtrType).Elem()
	}
	c, err := getCodec(typ)
	if err != nil {
		return err
	}
	return c.encode(stream, ptr)
}

func getCodec(typ reflect2.Type) (*codec, error) {
	key := typ.RType()
	if v, ok := codecs.Load(key); ok {
		return v.(*codec), nil
	}
	c, err := newCodec(typ)
	if err != nil {
		return nil, err
	}
	v, _ := codecs.LoadOrStore(key, c)
	return v.(*codec), nil
}

func newCodec(typ reflect2.Type) (*codec, error) {
	switch typ.Kind() {
	case reflect.Bool, reflect.Int8, reflect.Uint8:
		return scalarCodec(1), nil
	case reflect.Int16, reflect.Uint16:
		return scalarCodec(2), nil
	case reflect.Int32, reflect.Uint32:
		return scalarCodec(4), nil
	case reflect.Int64, reflect.Uint64:
		return scalarCodec(8), nil
	case reflect.Array:
		return arrayCodec(typ.(reflect2.ArrayType))
	case reflect.Struct:
		return structCodec(typ.(reflect2.StructType))
	}
	return nil, ErrTypeUnsupported
}

func scalarCodec(size int) *codec {
	c := &codec{size: structSize{size}}
	c.decode = func(stream Stream, ptr unsafe.Pointer) error {
		var raw [8]byte
		if err := readFull(stream, raw[:size]); err != nil {
			return err
		}
		order := stream.ByteOrder()
		switch size {
		case 1:
			*(*uint8)(ptr) = raw[0]
		case 2:
			*(*uint16)(ptr) = order.Uint16(raw[:])
		case 4:
			*(*uint32)(ptr) = order.Uint32(raw[:])
		case 8:
			*(*uint64)(ptr) = order.Uint64(raw[:])
		}
		return nil
	}
	c.encode = func(stream Stream, ptr unsafe.Pointer) error {
		var raw [8]byte
		order := stream.ByteOrder()
		switch size {
		case 1:
			raw[0] = *(*uint8)(ptr)
		case 2:
			order.PutUint16(raw[:], *(*uint16)(ptr))
		case 4:
			order.PutUint32(raw[:], *(*uint32)(ptr))
		case 8:
			order.PutUint64(raw[:], *(*uint64)(ptr))
		}
		_, err := stream.Write(raw[:size])
		return err
	}
	return c
}

func arrayCodec(typ reflect2.ArrayType) (*codec, error) {
	elem, err := getCodec(typ.Elem())
	if err != nil {
		return nil, err
	}
	count := typ.Len()
	stride := typ.Elem().Type1().Size()
	c := &codec{size: make(structSize, 0, count*len(elem.size))}
	for i := 0; i < count; i++ {
		c.size = c.size.Add(elem.size)
	}
	c.decode = func(stream Stream, ptr unsafe.Pointer) error {
		for i := 0; i < count; i++ {
			if err := elem.decode(stream, unsafe.Add(ptr, uintptr(i)*stride)); err != nil {
				return err
			}
		}
		return nil
	}
	c.encode = func(stream Stream, ptr unsafe.Pointer) error {
		for i := 0; i < count; i++ {
			if err := elem.encode(stream, unsafe.Add(ptr, uintptr(i)*stride)); err != nil {
				return err
			}
		}
		return nil
	}
	return c, nil
}

type fieldData struct {
	codec  *codec
	offset uintptr
	pad    int
}

func structCodec(typ reflect2.StructType) (*codec, error) {
	count := typ.NumField()
	fields := make([]fieldData, 0, count)
	var size structSize
	for i := 0; i < count; i++ {
		field := typ.Field(i)
		if field.Tag().Get("encoding") == "ignore" {
			continue
		}
		fc, err := getCodec(field.Type())
		if err != nil {
			return nil, err
		}
		offset := size.Size()
		pad := align(offset, fc.size.Align()) - offset
		if pad > 0 {
			size = append(size, pad)
		}
		size = size.Add(fc.size)
		fields = append(fields, fieldData{fc, field.Offset(), pad})
	}
	total := size.Size()
	tail := align(total, size.Align()) - total
	if tail > 0 {
		size = append(size, tail)
	}
	return &codec{
		size: size,
		decode: func(stream Stream, ptr unsafe.Pointer) error {
			for _, f := range fields {
				if f.pad > 0 {
					if err := stream.Skip(f.pad); err != nil {
						return err
					}
				}
				if err := f.codec.decode(stream, unsafe.Add(ptr, f.offset)); err != nil {
					return err
				}
			}
			if tail > 0 {
				return stream.Skip(tail)
			}
			return nil
		},
		encode: func(stream Stream, ptr unsafe.Pointer) error {
			var zero [8]byte
			for _, f := range fields {
				if f.pad > 0 {
					if _, err := stream.Write(zero[:f.pad]); err != nil {
						return err
					}
				}
				if err := f.codec.encode(stream, unsafe.Add(ptr, f.offset)); err != nil {
					return err
				}
			}
			if tail > 0 {
				_, err := stream.Write(zero[:tail])
				return err
			}
			return nil
		},
	}, nil
}

func readFull(stream Stream, b []byte) error {
	n, err := stream.Read(b)
	if err != nil {
		return err
	} else if n < len(b) {
		return ErrShortBuffer
	}
	return nil
}
