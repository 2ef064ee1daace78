package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/hoshinonyaruko/pixoo-snake/structs"
	_ "github.com/mattn/go-sqlite3"
)

const createDevicesTableSQL = `
CREATE TABLE IF NOT EXISTS Devices (
    Address TEXT PRIMARY KEY,
    LastSeen INTEGER,
    Connected INTEGER
);
`

const createDevicesIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_device_seen ON Devices (LastSeen);
`

// Open 打开数据库并建表
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// 内存库每个连接都是独立的库，只用一个连接
	db.SetMaxOpenConns(1)
	if err := InitializeDatabase(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func executeSQL(db *sql.DB, sqlStatement string) error {
	if _, err := db.Exec(sqlStatement); err != nil {
		return fmt.Errorf("executing SQL statement %q: %w", sqlStatement, err)
	}
	return nil
}

func InitializeDatabase(db *sql.DB) error {
	if err := executeSQL(db, createDevicesTableSQL); err != nil {
		return err
	}
	return executeSQL(db, createDevicesIndexSQL)
}

// RememberDevice records a connect attempt to address.
func RememberDevice(db *sql.DB, address string, connected bool) error {
	_, err := db.Exec("INSERT OR REPLACE INTO Devices (Address, LastSeen, Connected) VALUES (?, ?, ?)",
		address, time.Now().UnixNano(), connected)
	return err
}

// LastConnectedDevice returns the most recent address that connected
// successfully, or "" when there is none.
func LastConnectedDevice(db *sql.DB) (string, error) {
	var address string
	err := db.QueryRow("SELECT Address FROM Devices WHERE Connected = 1 ORDER BY LastSeen DESC, rowid DESC LIMIT 1").Scan(&address)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return address, nil
}

// ListDevices returns every known device, newest first.
func ListDevices(db *sql.DB) ([]structs.Device, error) {
	rows, err := db.Query("SELECT Address, LastSeen, Connected FROM Devices ORDER BY LastSeen DESC, rowid DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := []structs.Device{}
	for rows.Next() {
		var d structs.Device
		if err := rows.Scan(&d.Address, &d.LastSeen, &d.Connected); err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// Book adapts the database to the session's address book.
type Book struct {
	DB *sql.DB
}

func (b Book) Remember(address string, connected bool) error {
	return RememberDevice(b.DB, address, connected)
}
