package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/infrablocks/concourse-aws-entrypoint/util"
)

var ErrInvalidConfigFile = errors.New("invalid config file")

//go:embed schema.json
var fileSchema []byte
var fileSchemaLoader = gojsonschema.NewBytesLoader(fileSchema)

var compiledFileSchema = util.Must(gojsonschema.NewSchema(fileSchemaLoader))

// ValidateFile checks the JSON config file at path against the config
// file schema.
func ValidateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return Validate(data)
}

func Validate(data []byte) error {
	result, err := compiledFileSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfigFile, err)
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidConfigFile, strings.Join(problems, "; "))
}
