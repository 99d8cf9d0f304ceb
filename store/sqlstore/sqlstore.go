package sqlstore

import (
	internalerrors "github.com/jrsteele09/go-sso-client/internal/errors"
	"github.com/jrsteele09/go-sso-client/store"
	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var _ store.Repo = (*Store)(nil)

// Row is one persisted session field.
type Row struct {
	Store string `gorm:"column:store_name;primaryKey;size:191"`
	Key   string `gorm:"column:field_name;primaryKey;size:64"`
	Value string `gorm:"column:field_value;type:text;not null"`
}

func (Row) TableName() string {
	return "sso_session_rows"
}

// Store keeps the rows in an SQL table, partitioned by store name.
type Store struct {
	db   *gorm.DB
	name string
}

// Open opens an SQLite database file and migrates the table.
func Open(path, name string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore.Open gorm.Open")
	}
	return New(db, name)
}

// New uses an existing gorm connection.
func New(db *gorm.DB, name string) (*Store, error) {
	if db == nil {
		return nil, internalerrors.Wrapf(internalerrors.ErrMissingDependency, "[sqlstore.New] db")
	}
	if name == "" {
		return nil, internalerrors.Wrapf(internalerrors.ErrFieldNotSpecified, "[sqlstore.New] name")
	}
	if err := db.AutoMigrate(&Row{}); err != nil {
		return nil, errors.Wrap(err, "sqlstore.New AutoMigrate")
	}
	return &Store{db: db, name: name}, nil
}

// Close closes the connection pool behind the store, including one passed to New.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "Store.Close DB")
	}
	if err := sqlDB.Close(); err != nil {
		return errors.Wrap(err, "Store.Close")
	}
	return nil
}

func (s *Store) Name() string {
	return "sql:" + s.name
}

func (s *Store) Get(key string) (string, bool, error) {
	var rows []Row
	if err := s.db.Where("store_name = ? AND field_name = ?", s.name, key).Limit(1).Find(&rows).Error; err != nil {
		return "", false, errors.Wrap(err, "Store.Get Find")
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	return rows[0].Value, true, nil
}

func (s *Store) GetAll() (map[string]string, error) {
	var rows []Row
	if err := s.db.Where("store_name = ?", s.name).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "Store.GetAll Find")
	}
	values := make(map[string]string, len(rows))
	for _, r := range rows {
		values[r.Key] = r.Value
	}
	return values, nil
}

func (s *Store) PutAll(values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	rows := make([]Row, 0, len(values))
	for k, v := range values {
		rows = append(rows, Row{Store: s.name, Key: k, Value: v})
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "store_name"}, {Name: "field_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"field_value"}),
	}).Create(&rows).Error
	if err != nil {
		return errors.Wrap(err, "Store.PutAll Create")
	}
	return nil
}

func (s *Store) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.db.Where("store_name = ? AND field_name IN ?", s.name, keys).Delete(&Row{}).Error; err != nil {
		return errors.Wrap(err, "Store.Delete")
	}
	return nil
}

func (s *Store) Clear() error {
	if err := s.db.Where("store_name = ?", s.name).Delete(&Row{}).Error; err != nil {
		return errors.Wrap(err, "Store.Clear")
	}
	return nil
}
