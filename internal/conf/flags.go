package conf

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeyAnnotation marks a flag with the settings key it overrides.
const flagKeyAnnotation = "crmsync/viper-key"

// BindFlag records that flag name of fs overrides the settings key. The
// binding takes effect in BindFlags, which runs for the executing command
// only, so sub-commands may reuse flag names for different keys.
func BindFlag(fs *pflag.FlagSet, name, key string) {
	if err := fs.SetAnnotation(name, flagKeyAnnotation, []string{key}); err != nil {
		panic(fmt.Sprintf("conf: bind unknown flag %q", name))
	}
}

// BindFlags binds every annotated flag of fs to viper. Call it before Load.
func BindFlags(fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[flagKeyAnnotation]
		if len(keys) == 0 || err != nil {
			return
		}
		if bindErr := viper.BindPFlag(keys[0], f); bindErr != nil {
			err = fmt.Errorf("error binding flag %s: %w", f.Name, bindErr)
		}
	})
	return err
}
