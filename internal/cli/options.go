// Package cli binds command-line flags to environment variables.
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Opt is a single command-line option that can also be set from the
// environment.
type Opt struct {
	DestP   any // pointer to the destination
	Flag    string
	Default any
	Desc    string
}

// NewOpt creates a new command line option.
func NewOpt(destP any, flag string, dflt any, desc string) Opt {
	return Opt{
		DestP:   destP,
		Flag:    flag,
		Default: dflt,
		Desc:    desc,
	}
}

// NewViper returns a viper instance reading environment variables named
// after the upper-cased prefix and the flag, with "-" replaced by "_".
// For prefix "eky", flag "log-level" maps to EKY_LOG_LEVEL.
func NewViper(prefix string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(strings.ToUpper(prefix))
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	return v
}

// BindOptions adds opts to fs and registers them with v.
//
// Destinations are set immediately from the environment or the default, and
// overwritten when the flag is passed on the command line. The precedence is
// flag, then environment, then default.
func BindOptions(v *viper.Viper, fs *pflag.FlagSet, opts []Opt) {
	for _, o := range opts {
		switch destP := o.DestP.(type) {
		case *string:
			var d string
			if o.Default != nil {
				d = o.Default.(string)
			}
			fs.StringVar(destP, o.Flag, d, o.Desc)
			mustBindPFlag(v, fs, o.Flag)
			*destP = v.GetString(o.Flag)
		case *bool:
			var d bool
			if o.Default != nil {
				d = o.Default.(bool)
			}
			fs.BoolVar(destP, o.Flag, d, o.Desc)
			mustBindPFlag(v, fs, o.Flag)
			*destP = v.GetBool(o.Flag)
		default:
			panic(fmt.Errorf("unknown destination type %T for flag %q", o.DestP, o.Flag))
		}
	}
}

func mustBindPFlag(v *viper.Viper, fs *pflag.FlagSet, key string) {
	if err := v.BindPFlag(key, fs.Lookup(key)); err != nil {
		panic(err)
	}
}
