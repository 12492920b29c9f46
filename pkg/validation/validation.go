package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrMalformed はボディがJSONとして解釈できないことを表す。
	ErrMalformed = errors.New("リクエストボディが不正なJSONです")
	// ErrNotArray は配列を期待した箇所に配列以外が渡されたことを表す。
	ErrNotArray = errors.New("配列が必要です")
)

// Violation はフィールド単位の検証違反。
type Violation struct {
	// Field はドット区切りのフィールドパス。
	Field string `json:"field"`
	// Message は人間向けのエラーメッセージ。
	Message string `json:"message"`
}

// Error は1件以上の検証違反をまとめたエラー。
type Error struct {
	// Violations は検出されたすべての違反。
	Violations []Violation
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return "検証エラー: " + strings.Join(msgs, "; ")
}

// Validator はスキーマ検証器。並行利用して安全。
type Validator struct {
	validate *validator.Validate
}

// New は新しいValidatorを生成する。
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	// integer は数値が整数値であることを検証する。
	_ = v.RegisterValidation("integer", func(fl validator.FieldLevel) bool {
		f := fl.Field()
		switch f.Kind() {
		case reflect.Float32, reflect.Float64:
			return f.Float() == math.Trunc(f.Float())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return true
		default:
			return false
		}
	})
	return &Validator{validate: v}
}

// Decode はJSONボディをdst（structへのポインタ）にデコードし、スキーマを検証する。
// 違反がある場合は *Error を返す。JSONとして不正な場合は ErrMalformed を返す。
func (v *Validator) Decode(data []byte, dst any) error {
	violations, err := v.decode(data, dst)
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		return &Error{Violations: violations}
	}
	return nil
}

// DecodeEach はJSON配列の各要素をT型としてデコード・検証する。
// 違反のフィールドパスには要素のインデックスが先頭に付く（例: "1.price"）。
func DecodeEach[T any](v *Validator, data []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(data)
	if !json.Valid(trimmed) {
		return nil, ErrMalformed
	}
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrNotArray
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	items := make([]T, len(raws))
	var violations []Violation
	for i, raw := range raws {
		vs, err := v.decode(raw, &items[i])
		if err != nil {
			return nil, err
		}
		for _, vl := range vs {
			vl.Field = joinPath(fmt.Sprint(i), vl.Field)
			violations = append(violations, vl)
		}
	}
	if len(violations) > 0 {
		return nil, &Error{Violations: violations}
	}
	return items, nil
}

// decode はデコードとルール検証を行い、違反を収集して返す。
func (v *Validator) decode(data []byte, dst any) ([]Violation, error) {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("デコード先はstructへのポインタである必要があります: %T", dst)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		trimmed = []byte("{}")
	}
	if !json.Valid(trimmed) {
		return nil, ErrMalformed
	}
	if trimmed[0] != '{' {
		return []Violation{{Field: "", Message: `"value" must be of type object`}}, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var violations []Violation
	elem := rv.Elem()
	typ := elem.Type()
	known := make(map[string]bool, typ.NumField())
	badType := make(map[string]bool)

	// 型の検証。フィールドごとに個別にデコードし、不一致をすべて収集する。
	for i := range typ.NumField() {
		sf := typ.Field(i)
		name := jsonName(sf)
		if name == "" || !sf.IsExported() {
			continue
		}
		known[name] = true

		raw, ok := fields[name]
		if !ok {
			continue
		}
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) ||
			json.Unmarshal(raw, elem.Field(i).Addr().Interface()) != nil {
			badType[name] = true
			elem.Field(i).SetZero()
			violations = append(violations, Violation{
				Field:   name,
				Message: fmt.Sprintf("%q must be %s", name, describe(sf.Type)),
			})
		}
	}

	// ルールの検証
	if err := v.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, fmt.Errorf("スキーマ検証に失敗: %w", err)
		}
		for _, fe := range verrs {
			path := fieldPath(fe.Namespace())
			if badType[topLevel(path)] {
				continue
			}
			violations = append(violations, v.violationFor(typ, path, fe))
		}
	}

	// 未知のフィールド
	var unknown []string
	for name := range fields {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		violations = append(violations, Violation{Field: name, Message: fmt.Sprintf("%q is not allowed", name)})
	}

	return violations, nil
}

// violationFor はvalidatorのFieldErrorを違反に変換する。
func (v *Validator) violationFor(typ reflect.Type, path string, fe validator.FieldError) Violation {
	label := fmt.Sprintf("%q", path)
	switch fe.Tag() {
	case "required":
		return Violation{Field: path, Message: label + " is required"}
	case "required_with":
		// 依存元のフィールドを主体として報告する
		peer := path
		if sf, ok := typ.FieldByName(fe.Param()); ok {
			peer = jsonName(sf)
		}
		return Violation{Field: peer, Message: fmt.Sprintf("%q missing required peer %s", peer, label)}
	case "email":
		return Violation{Field: path, Message: label + " must be a valid email"}
	case "url", "uri":
		return Violation{Field: path, Message: label + " must be a valid uri"}
	case "integer":
		return Violation{Field: path, Message: label + " must be an integer"}
	case "min", "gte":
		return Violation{Field: path, Message: label + boundMessage(fe.Kind(), "at least", "greater than or equal to", fe.Param())}
	case "max", "lte":
		return Violation{Field: path, Message: label + boundMessage(fe.Kind(), "less than or equal to", "less than or equal to", fe.Param())}
	default:
		return Violation{Field: path, Message: fmt.Sprintf("%s failed on the %q rule", label, fe.Tag())}
	}
}

// boundMessage は長さ・値の境界違反メッセージの述部を組み立てる。
func boundMessage(kind reflect.Kind, lengthWord, valueWord, param string) string {
	switch kind {
	case reflect.String:
		return fmt.Sprintf(" length must be %s %s characters long", lengthWord, param)
	case reflect.Slice, reflect.Array, reflect.Map:
		return fmt.Sprintf(" must contain %s %s items", lengthWord, param)
	default:
		return fmt.Sprintf(" must be %s %s", valueWord, param)
	}
}

// describe は型不一致メッセージ用に期待する型を表現する。
func describe(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "a boolean"
	case reflect.Float32, reflect.Float64,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "a number"
	case reflect.Slice, reflect.Array:
		return "an array of " + strings.TrimPrefix(strings.TrimPrefix(describe(t.Elem()), "a "), "an ") + "s"
	case reflect.Map:
		return "of type object with " + strings.TrimPrefix(describe(t.Elem()), "a ") + " values"
	default:
		return "of type object"
	}
}

// jsonName はstructフィールドのJSON名を返す。"-" の場合は空文字を返す。
func jsonName(sf reflect.StructField) string {
	name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return sf.Name
	}
	return name
}

// fieldPath はvalidatorのNamespace（例: "productRequest.imageGallery[0]"）を
// ドット区切りのパス（例: "imageGallery.0"）に変換する。
func fieldPath(namespace string) string {
	_, rest, found := strings.Cut(namespace, ".")
	if !found {
		rest = namespace
	}
	rest = strings.ReplaceAll(rest, "[", ".")
	return strings.ReplaceAll(rest, "]", "")
}

// topLevel はパスの先頭セグメントを返す。
func topLevel(path string) string {
	head, _, _ := strings.Cut(path, ".")
	return head
}

// joinPath はパスセグメントを連結する。
func joinPath(prefix, path string) string {
	if path == "" {
		return prefix
	}
	return prefix + "." + path
}
