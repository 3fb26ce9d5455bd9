package txn

import (
	"maps"
	"strconv"
)

const (
	OptionReadOnly        = "read-only"
	OptionNoUndo          = "no-undo"
	OptionNoValidation    = "no-validation"
	OptionNoTriggers      = "no-triggers"
	OptionNoNotifications = "no-notifications"
	OptionUnprotected     = "unprotected"
)

// Options configures a transaction. Boolean options are true when set to
// true or to a string that parses as true.
type Options map[string]any

func (o Options) Clone() Options {
	res := make(Options, len(o))
	maps.Copy(res, o)
	return res
}

func (o Options) Bool(key string) bool {
	switch x := o[key].(type) {
	case bool:
		return x
	case string:
		b, _ := strconv.ParseBool(x)
		return b
	}
	return false
}

// With returns a copy of o with key set to v.
func (o Options) With(key string, v any) Options {
	res := o.Clone()
	res[key] = v
	return res
}

// merge returns base overlaid with o.
func (o Options) merge(base Options) Options {
	res := base.Clone()
	maps.Copy(res, o)
	return res
}

// inherit adds the options of parent that o does not set. read-only is
// never inherited.
func (o Options) inherit(parent Options) {
	for k, v := range parent {
		if k == OptionReadOnly {
			continue
		}
		if _, ok := o[k]; !ok {
			o[k] = v
		}
	}
}

func undoEnabled(tx *Transaction) bool {
	return !(tx.readOnly || tx.option(OptionNoUndo) || tx.option(OptionUnprotected))
}

func validationEnabled(tx *Transaction) bool {
	return !(tx.readOnly || tx.option(OptionNoValidation) || tx.option(OptionUnprotected))
}

func triggerEnabled(tx *Transaction) bool {
	return !(tx.readOnly || tx.option(OptionNoTriggers) || tx.option(OptionUnprotected))
}

func notificationEnabled(tx *Transaction) bool {
	return !tx.option(OptionNoNotifications)
}

func unprotected(tx *Transaction) bool {
	return !tx.readOnly && tx.option(OptionUnprotected)
}
