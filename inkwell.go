// Package inkwell is the host entry point for the inkwell edit history and
// retention cache.
//
// It re-exports the engine facade and the types a host needs to drive it,
// so applications only import this package:
//
//	e := inkwell.New(inkwell.WithConfig(cfg), inkwell.WithLogger(logger))
//	defer e.Close()
//
//	e.Add(inkwell.NewRecord(inkwell.KindFreeformPath, points, style))
//	e.Undo()
package inkwell

import (
	"github.com/dshills/inkwell/internal/cache"
	"github.com/dshills/inkwell/internal/config"
	"github.com/dshills/inkwell/internal/engine"
	"github.com/dshills/inkwell/internal/history/batch"
	"github.com/dshills/inkwell/internal/history/record"
	"github.com/dshills/inkwell/internal/history/transform"
	"github.com/dshills/inkwell/internal/metrics"
	"github.com/dshills/inkwell/internal/notify"
)

// Re-export commonly used types for convenience.
type (
	// Engine is the history and cache facade.
	Engine = engine.Engine

	// Option configures an Engine.
	Option = engine.Option

	// Stats summarizes every component.
	Stats = engine.Stats

	// DeriveFunc produces a cached artifact during Prewarm.
	DeriveFunc = engine.DeriveFunc

	// Record is one atomic, reversible edit.
	Record = record.Record

	// RecordID identifies a record.
	RecordID = record.ID

	// RecordList is an ordered sequence of records.
	RecordList = record.List

	// Kind names a record type.
	Kind = record.Kind

	// Point is a sampled position.
	Point = record.Point

	// Style holds paint attributes.
	Style = record.Style

	// Registry declares the capabilities of each record kind.
	Registry = record.Registry

	// Capability is a record kind capability.
	Capability = record.Capability

	// BatchID identifies a batch.
	BatchID = batch.ID

	// BatchKind names a composite edit.
	BatchKind = batch.Kind

	// BatchUndoResult is returned by UndoBatch.
	BatchUndoResult = batch.UndoResult

	// TransformID identifies a transform gesture.
	TransformID = transform.ID

	// CacheOptions describes a cached value.
	CacheOptions = cache.SetOptions

	// Config holds every recognized option.
	Config = config.Config

	// Event is a notification.
	Event = notify.Event

	// Topic names an event stream.
	Topic = notify.Topic

	// Observer receives events.
	Observer = notify.Observer

	// HistoryChanged is the payload of TopicHistoryChanged.
	HistoryChanged = notify.HistoryChanged

	// ActionUpdated is the payload of TopicActionUpdated.
	ActionUpdated = notify.ActionUpdated

	// Metrics holds the Prometheus collectors.
	Metrics = metrics.Collector
)

// Re-export constants.
const (
	KindFreeformPath = record.KindFreeformPath
	KindShape        = record.KindShape
	KindText         = record.KindText
	KindErase        = record.KindErase

	CapTransform = record.CapTransform
	CapCache     = record.CapCache
	CapText      = record.CapText

	BatchStructuralSplit = batch.KindStructuralSplit
	BatchMultiDelete     = batch.KindMultiDelete
	BatchMultiTransform  = batch.KindMultiTransform
	BatchCustom          = batch.KindCustom

	TopicHistoryChanged = notify.TopicHistoryChanged
	TopicActionUpdated  = notify.TopicActionUpdated
)

// Constructors and options.
var (
	New                      = engine.New
	WithConfig               = engine.WithConfig
	WithLogger               = engine.WithLogger
	WithMetrics              = engine.WithMetrics
	WithRegistry             = engine.WithRegistry
	WithNotifier             = engine.WithNotifier
	WithClock                = engine.WithClock
	WithTransactionalBatches = engine.WithTransactionalBatches

	NewRecord   = record.New
	NewText     = record.NewText
	NewRegistry = record.NewRegistry
	NewMetrics  = metrics.New

	DefaultConfig = config.Default
	LoadConfig    = config.Load
)
