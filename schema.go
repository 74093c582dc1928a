package raydb

import (
	"sync"

	"github.com/raydb/raydb/internal/delta"
	"github.com/raydb/raydb/internal/model"
	"github.com/raydb/raydb/internal/snapshot"
)

// catalog is a reverse name->id index over the three catalogs (labels,
// edge types, property keys), seeded once at Open from the current
// snapshot's catalog sections and the live delta's pending definitions.
// Catalog ids are never reused (spec.md §3.1) and a checkpoint only ever
// folds a delta's NewLabels/NewEtypes/NewPropkeys into the snapshot's own
// arrays verbatim, so the id a name resolves to never changes once
// allocated — catalog itself never needs to be rebuilt after Open.
type catalog struct {
	mu sync.Mutex

	labels   map[string]model.LabelID
	etypes   map[string]model.ETypeID
	propkeys map[string]model.PropKeyID

	labelNames   map[model.LabelID]string
	etypeNames   map[model.ETypeID]string
	propkeyNames map[model.PropKeyID]string

	nextLabel   model.LabelID
	nextEtype   model.ETypeID
	nextPropkey model.PropKeyID
}

func newCatalog(snap *snapshot.Snapshot, committed *delta.Delta) *catalog {
	c := &catalog{
		labels:       make(map[string]model.LabelID),
		etypes:       make(map[string]model.ETypeID),
		propkeys:     make(map[string]model.PropKeyID),
		labelNames:   make(map[model.LabelID]string),
		etypeNames:   make(map[model.ETypeID]string),
		propkeyNames: make(map[model.PropKeyID]string),
	}
	if snap != nil {
		hdr := snap.Header()
		for id := uint64(1); id <= hdr.NumLabels; id++ {
			lid := model.LabelID(id)
			if name := snap.LabelName(lid); name != "" {
				c.labels[name] = lid
				c.labelNames[lid] = name
			}
		}
		for id := uint64(1); id <= hdr.NumEtypes; id++ {
			eid := model.ETypeID(id)
			if name := snap.EtypeName(eid); name != "" {
				c.etypes[name] = eid
				c.etypeNames[eid] = name
			}
		}
		for id := uint64(1); id <= hdr.NumPropkeys; id++ {
			pid := model.PropKeyID(id)
			if name := snap.PropkeyName(pid); name != "" {
				c.propkeys[name] = pid
				c.propkeyNames[pid] = name
			}
		}
		c.nextLabel = model.LabelID(hdr.NumLabels)
		c.nextEtype = model.ETypeID(hdr.NumEtypes)
		c.nextPropkey = model.PropKeyID(hdr.NumPropkeys)
	}
	for id, name := range committed.NewLabels {
		c.labels[name] = id
		c.labelNames[id] = name
		if id > c.nextLabel {
			c.nextLabel = id
		}
	}
	for id, name := range committed.NewEtypes {
		c.etypes[name] = id
		c.etypeNames[id] = name
		if id > c.nextEtype {
			c.nextEtype = id
		}
	}
	for id, name := range committed.NewPropkeys {
		c.propkeys[name] = id
		c.propkeyNames[id] = name
		if id > c.nextPropkey {
			c.nextPropkey = id
		}
	}
	return c
}

// LabelID / EtypeID / PropkeyID resolve an already-defined catalog name.
func (c *catalog) LabelID(name string) (model.LabelID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.labels[name]
	return id, ok
}
func (c *catalog) EtypeID(name string) (model.ETypeID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.etypes[name]
	return id, ok
}
func (c *catalog) PropkeyID(name string) (model.PropKeyID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.propkeys[name]
	return id, ok
}

// LabelName / EtypeName / PropkeyName resolve a catalog id back to its name.
func (c *catalog) LabelName(id model.LabelID) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.labelNames[id]
	return name, ok
}
func (c *catalog) EtypeName(id model.ETypeID) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.etypeNames[id]
	return name, ok
}
func (c *catalog) PropkeyName(id model.PropKeyID) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.propkeyNames[id]
	return name, ok
}

// reserveLabel/reserveEtype/reservePropkey hand out the next id in a
// namespace without yet publishing the name->id mapping: the caller must
// commit the DEFINE_* op and only then call the matching record* method,
// so a failed commit never leaves a half-defined name resolvable.
func (c *catalog) reserveLabel() model.LabelID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextLabel++
	return c.nextLabel
}
func (c *catalog) reserveEtype() model.ETypeID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextEtype++
	return c.nextEtype
}
func (c *catalog) reservePropkey() model.PropKeyID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextPropkey++
	return c.nextPropkey
}

func (c *catalog) recordLabel(id model.LabelID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.labels[name] = id
	c.labelNames[id] = name
}
func (c *catalog) recordEtype(id model.ETypeID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.etypes[name] = id
	c.etypeNames[id] = name
}
func (c *catalog) recordPropkey(id model.PropKeyID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.propkeys[name] = id
	c.propkeyNames[id] = name
}

// DefineLabel returns name's id, defining it (a single auto-committed
// transaction) if this is the first time it has been seen, per spec.md
// §6.2's "define_label (allocate a new id, record in tx pending)". Repeat
// calls with the same name are idempotent and never burn a second id.
func (db *DB) DefineLabel(name string) (model.LabelID, error) {
	if id, ok := db.catalog.LabelID(name); ok {
		return id, nil
	}
	id := db.catalog.reserveLabel()
	tx, err := db.txMgr.BeginTx()
	if err != nil {
		return 0, newError("DefineLabel", err)
	}
	if err := tx.DefineLabel(id, name); err != nil {
		tx.Rollback()
		return 0, newError("DefineLabel", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, newError("DefineLabel", err)
	}
	db.catalog.recordLabel(id, name)
	return id, nil
}

// DefineEtype is DefineLabel's edge-type counterpart.
func (db *DB) DefineEtype(name string) (model.ETypeID, error) {
	if id, ok := db.catalog.EtypeID(name); ok {
		return id, nil
	}
	id := db.catalog.reserveEtype()
	tx, err := db.txMgr.BeginTx()
	if err != nil {
		return 0, newError("DefineEtype", err)
	}
	if err := tx.DefineEtype(id, name); err != nil {
		tx.Rollback()
		return 0, newError("DefineEtype", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, newError("DefineEtype", err)
	}
	db.catalog.recordEtype(id, name)
	return id, nil
}

// DefinePropkey is DefineLabel's property-key counterpart.
func (db *DB) DefinePropkey(name string) (model.PropKeyID, error) {
	if id, ok := db.catalog.PropkeyID(name); ok {
		return id, nil
	}
	id := db.catalog.reservePropkey()
	tx, err := db.txMgr.BeginTx()
	if err != nil {
		return 0, newError("DefinePropkey", err)
	}
	if err := tx.DefinePropkey(id, name); err != nil {
		tx.Rollback()
		return 0, newError("DefinePropkey", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, newError("DefinePropkey", err)
	}
	db.catalog.recordPropkey(id, name)
	return id, nil
}

// LabelName / EtypeName / PropkeyName resolve a catalog id back to its name.
func (db *DB) LabelName(id model.LabelID) (string, bool) { return db.catalog.LabelName(id) }
func (db *DB) EtypeName(id model.ETypeID) (string, bool) { return db.catalog.EtypeName(id) }
func (db *DB) PropkeyName(id model.PropKeyID) (string, bool) {
	return db.catalog.PropkeyName(id)
}
