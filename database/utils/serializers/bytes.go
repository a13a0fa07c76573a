package serializers

import (
	"context"
	"fmt"
	"reflect"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"gorm.io/gorm/schema"
)

type BytesInterface interface{ Bytes() []byte }
type SetBytesInterface interface{ SetBytes([]byte) }

// BytesSerializer stores hashes and addresses as lower-case 0x hex strings, which keeps
// them comparable with strings.ToLower(addr.Hex()) in raw queries.
type BytesSerializer struct{}

func init() {
	schema.RegisterSerializer("bytes", BytesSerializer{})
}

func (BytesSerializer) Scan(ctx context.Context, field *schema.Field, dst reflect.Value, dbValue interface{}) error {
	if dbValue == nil {
		return nil
	}

	var hexStr string
	switch v := dbValue.(type) {
	case string:
		hexStr = v
	case []byte:
		hexStr = string(v)
	default:
		return fmt.Errorf("expected hex string as the database value: %T", dbValue)
	}
	b, err := hexutil.Decode(hexStr)
	if err != nil {
		return fmt.Errorf("failed to decode database value: %w", err)
	}

	fieldValue := reflect.New(field.FieldType)
	fieldInterface := fieldValue.Interface()
	if field.FieldType.Kind() == reflect.Pointer {
		nilPtr := reflect.New(field.FieldType.Elem())
		fieldValue.Elem().Set(nilPtr)
		fieldInterface = nilPtr.Interface()
	}

	setter, ok := fieldInterface.(SetBytesInterface)
	if !ok {
		return fmt.Errorf("field does not satisfy the SetBytes([]byte) interface: %T", fieldInterface)
	}
	setter.SetBytes(b)
	field.ReflectValueOf(ctx, dst).Set(fieldValue.Elem())
	return nil
}

func (BytesSerializer) Value(_ context.Context, field *schema.Field, _ reflect.Value, fieldValue interface{}) (interface{}, error) {
	if fieldValue == nil || (field.FieldType.Kind() == reflect.Pointer && reflect.ValueOf(fieldValue).IsNil()) {
		return nil, nil
	}
	b, ok := fieldValue.(BytesInterface)
	if !ok {
		return nil, fmt.Errorf("field does not satisfy the Bytes() interface: %T", fieldValue)
	}
	return hexutil.Encode(b.Bytes()), nil
}
