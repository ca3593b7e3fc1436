// Package datastore is the database access layer for rethinkdb.
package datastore

import (
	"fmt"
	"net/netip"
	"reflect"
	"strings"
	"time"

	"go.uber.org/zap"
	r "gopkg.in/rethinkdb/rethinkdb-go.v6"

	"github.com/provision-stack/provision-api/cmd/provision-api/internal/ipset"
	"github.com/provision-stack/provision-api/cmd/provision-api/internal/metal"
)

var (
	tables = []string{"discovery", "ip", "iprange", "machine", "staticroute", "subnet"}
)

// A RethinkStore is the database access layer for rethinkdb.
type RethinkStore struct {
	*zap.SugaredLogger
	session   r.QueryExecutor
	dbsession *r.Session

	dbname string
	dbuser string
	dbpass string
	dbhost string
}

// New creates a new rethink store.
func New(log *zap.SugaredLogger, dbhost string, dbname string, dbuser string, dbpass string) *RethinkStore {
	return &RethinkStore{
		SugaredLogger: log,
		dbhost:        dbhost,
		dbname:        dbname,
		dbuser:        dbuser,
		dbpass:        dbpass,
	}
}

func multi(session r.QueryExecutor, tt ...r.Term) error {
	for _, t := range tt {
		if err := t.Exec(session); err != nil {
			return err
		}
	}
	return nil
}

// Health checks if the connection to the database is ok.
func (rs *RethinkStore) Health() error {
	return multi(rs.session,
		r.Branch(
			rs.db().TableList().Difference(r.Expr(tables)).Count().Eq(0),
			r.Expr(true),
			r.Error("too many tables in DB")),
		r.Branch(
			r.Expr(tables).Difference(rs.db().TableList()).Count().Eq(0),
			r.Expr(true),
			r.Error("too less tables in DB")),
	)
}

// Initialize initializes the database, it should be called every time
// the application comes up before using the data store.
func (rs *RethinkStore) Initialize() error {
	return rs.initializeTables(r.TableCreateOpts{Shards: 1, Replicas: 1})
}

func (rs *RethinkStore) initializeTables(opts r.TableCreateOpts) error {
	db := rs.db()

	err := multi(rs.session,
		// create our tables
		r.Expr(tables).Difference(db.TableList()).ForEach(func(t r.Term) r.Term {
			return db.TableCreate(t, opts)
		}),
		// create indices
		db.Table("iprange").IndexList().Contains("subnetid").Do(func(i r.Term) r.Term {
			return r.Branch(i, nil, db.Table("iprange").IndexCreate("subnetid"))
		}),
		db.Table("ip").IndexList().Contains("subnetid").Do(func(i r.Term) r.Term {
			return r.Branch(i, nil, db.Table("ip").IndexCreate("subnetid"))
		}),
		db.Table("staticroute").IndexList().Contains("sourcesubnetid").Do(func(i r.Term) r.Term {
			return r.Branch(i, nil, db.Table("staticroute").IndexCreate("sourcesubnetid"))
		}),
		db.Table("discovery").IndexList().Contains("subnetid").Do(func(i r.Term) r.Term {
			return r.Branch(i, nil, db.Table("discovery").IndexCreate("subnetid"))
		}),
	)
	if err != nil {
		return err
	}

	rs.Infow("tables successfully initialized")
	return nil
}

func (rs *RethinkStore) machineTable() *r.Term {
	res := r.DB(rs.dbname).Table("machine")
	return &res
}
func (rs *RethinkStore) subnetTable() *r.Term {
	res := r.DB(rs.dbname).Table("subnet")
	return &res
}
func (rs *RethinkStore) iprangeTable() *r.Term {
	res := r.DB(rs.dbname).Table("iprange")
	return &res
}
func (rs *RethinkStore) staticrouteTable() *r.Term {
	res := r.DB(rs.dbname).Table("staticroute")
	return &res
}
func (rs *RethinkStore) ipTable() *r.Term {
	res := r.DB(rs.dbname).Table("ip")
	return &res
}
func (rs *RethinkStore) discoveryTable() *r.Term {
	res := r.DB(rs.dbname).Table("discovery")
	return &res
}
func (rs *RethinkStore) db() *r.Term {
	res := r.DB(rs.dbname)
	return &res
}

// Mock return the mock from the rethinkdb driver and sets the
// session to this mock. This MUST NOT be called in productive code.
func (rs *RethinkStore) Mock() *r.Mock {
	m := r.NewMock()
	rs.session = m
	return m
}

// Close closes the database session.
func (rs *RethinkStore) Close() error {
	if rs.dbsession != nil {
		err := rs.dbsession.Close()
		if err != nil {
			return err
		}
	}
	rs.Info("Rethinkstore disconnected")
	return nil
}

// Connect connects to the database. If there is an error, it will run until
// there is a connection.
func (rs *RethinkStore) Connect() error {
	rs.dbsession = retryConnect(rs.SugaredLogger, []string{rs.dbhost}, rs.dbname, rs.dbuser, rs.dbpass)
	rs.Info("Rethinkstore connected")
	rs.session = rs.dbsession
	return nil
}

func connect(hosts []string, dbname, user, pwd string) (*r.Session, error) {
	var err error
	session, err := r.Connect(r.ConnectOpts{
		Addresses: hosts,
		Database:  dbname,
		Username:  user,
		Password:  pwd,
		MaxIdle:   10,
		MaxOpen:   20,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot connect to DB: %v", err)
	}

	err = r.DBList().Contains(dbname).Do(func(row r.Term) r.Term {
		return r.Branch(row, nil, r.DBCreate(dbname))
	}).Exec(session)
	if err != nil {
		return nil, fmt.Errorf("cannot create database: %v", err)
	}

	return session, nil
}

// retryConnect infinitely tries to establish a database connection.
// in case a connection could not be established, the function will
// wait for a short period of time and try again.
func retryConnect(log *zap.SugaredLogger, hosts []string, dbname, user, pwd string) *r.Session {
tryAgain:
	s, err := connect(hosts, dbname, user, pwd)
	if err != nil {
		log.Errorw("db connection error", "db", dbname, "hosts", hosts, "error", err)
		time.Sleep(3 * time.Second)
		goto tryAgain
	}
	return s
}

func (rs *RethinkStore) findEntityByID(table *r.Term, entity interface{}, id string) error {
	res, err := table.Get(id).Run(rs.session)
	if err != nil {
		return fmt.Errorf("cannot find %v with id %q in database: %v", getEntityName(entity), id, err)
	}
	defer res.Close()
	if res.IsNil() {
		return metal.NotFound("no %v with id %q found", getEntityName(entity), id)
	}
	err = res.One(entity)
	if err != nil {
		return fmt.Errorf("more than one %v with same id exists: %v", getEntityName(entity), err)
	}
	return nil
}

func (rs *RethinkStore) searchEntities(query *r.Term, entity interface{}) error {
	res, err := query.Run(rs.session)
	if err != nil {
		return fmt.Errorf("cannot search %v in database: %v", getEntityName(entity), err)
	}
	defer res.Close()

	err = res.All(entity)
	if err != nil {
		return fmt.Errorf("cannot fetch all entities: %v", err)
	}
	return nil
}

func (rs *RethinkStore) listEntities(table *r.Term, entity interface{}) error {
	res, err := table.Run(rs.session)
	if err != nil {
		return fmt.Errorf("cannot list %v from database: %v", getEntityName(entity), err)
	}
	defer res.Close()

	err = res.All(entity)
	if err != nil {
		return fmt.Errorf("cannot fetch all entities: %v", err)
	}
	return nil
}

func (rs *RethinkStore) createEntity(table *r.Term, entity metal.Entity) error {
	now := time.Now()
	entity.SetCreated(now)
	entity.SetChanged(now)

	res, err := table.Insert(entity).RunWrite(rs.session)
	if err != nil {
		return fmt.Errorf("cannot create %v in database: %v", getEntityName(entity), err)
	}

	if entity.GetID() == "" && len(res.GeneratedKeys) > 0 {
		entity.SetID(res.GeneratedKeys[0])
	}
	return nil
}

func (rs *RethinkStore) deleteEntity(table *r.Term, entity metal.Entity) error {
	_, err := table.Get(entity.GetID()).Delete().RunWrite(rs.session)
	if err != nil {
		return fmt.Errorf("cannot delete %v with id %q from database: %v", getEntityName(entity), entity.GetID(), err)
	}
	return nil
}

func (rs *RethinkStore) updateEntity(table *r.Term, newEntity metal.Entity, oldEntity metal.Entity) error {
	newEntity.SetChanged(time.Now())
	_, err := table.Get(oldEntity.GetID()).Replace(func(row r.Term) r.Term {
		return r.Branch(row.Field("changed").Eq(r.Expr(oldEntity.GetChanged())), newEntity, r.Error("the entity was changed from another, please retry"))
	}).RunWrite(rs.session)
	if err != nil {
		return fmt.Errorf("cannot update %v (%s): %v", getEntityName(newEntity), oldEntity.GetID(), err)
	}
	return nil
}

func getEntityName(entity interface{}) string {
	t := reflect.TypeOf(entity)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return strings.ToLower(t.Name())
}

// singleAddressRange converts a stored scalar address into a single address
// range. Empty fields contribute nothing.
func singleAddressRange(address string, purpose ipset.Purpose) (*ipset.Range, error) {
	if address == "" {
		return nil, nil
	}
	addr, err := netip.ParseAddr(address)
	if err != nil {
		return nil, fmt.Errorf("stored address %q is not parsable: %v", address, err)
	}
	rng, err := ipset.SingleRange(addr, purpose)
	if err != nil {
		return nil, err
	}
	return &rng, nil
}

// addressRange converts stored range bounds into a range. Ranges whose bounds
// were never set contribute nothing.
func addressRange(start, end string, purpose ipset.Purpose) (*ipset.Range, error) {
	if start == "" || end == "" {
		return nil, nil
	}
	startAddr, err := netip.ParseAddr(start)
	if err != nil {
		return nil, fmt.Errorf("stored range start %q is not parsable: %v", start, err)
	}
	endAddr, err := netip.ParseAddr(end)
	if err != nil {
		return nil, fmt.Errorf("stored range end %q is not parsable: %v", end, err)
	}
	rng, err := ipset.NewRange(startAddr, endAddr, purpose)
	if err != nil {
		return nil, err
	}
	return &rng, nil
}
