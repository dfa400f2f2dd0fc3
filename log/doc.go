// Package log defines the structured logging facade used across relay.
//
// Components accept a log.Logger and never depend on a concrete backend;
// the zap package provides the production implementation and NewNop the
// silent default.
package log
