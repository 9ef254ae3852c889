package postgres

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/0xmhha/transfer-indexer/pkg/entity"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
)

// Column is a table column. Numeric columns hold arbitrary-precision
// integers and travel as decimal text.
type Column struct {
	Name    string
	Numeric bool
}

// Table maps an entity kind onto a table. Columns[0] must be the id.
type Table[E entity.Entity] struct {
	Name    string
	Columns []Column
	Values  func(E) []any
	Scan    func(pgx.Row) (E, error)
}

func (t Table[E]) selectList() string {
	exprs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		if c.Numeric {
			exprs[i] = c.Name + "::text"
		} else {
			exprs[i] = c.Name
		}
	}
	return strings.Join(exprs, ", ")
}

func (t Table[E]) selectByIDs() string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE id = ANY($1)", t.selectList(), t.Name)
}

func (t Table[E]) selectByID() string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", t.selectList(), t.Name)
}

func (t Table[E]) upsert() string {
	names := make([]string, len(t.Columns))
	params := make([]string, len(t.Columns))
	var updates []string
	for i, c := range t.Columns {
		names[i] = c.Name
		params[i] = fmt.Sprintf("$%d", i+1)
		if c.Numeric {
			params[i] += "::text::numeric"
		}
		if i > 0 {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c.Name, c.Name))
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO ",
		t.Name, strings.Join(names, ", "), strings.Join(params, ", "))
	if len(updates) == 0 {
		return query + "NOTHING"
	}
	return query + "UPDATE SET " + strings.Join(updates, ", ")
}

// AccountTable maps accounts
var AccountTable = Table[*entity.Account]{
	Name: "accounts",
	Columns: []Column{
		{Name: "id"},
		{Name: "transfer_count"},
		{Name: "sent_count"},
		{Name: "received_count"},
	},
	Values: func(a *entity.Account) []any {
		return []any{a.ID, int64(a.TransferCount), int64(a.SentCount), int64(a.ReceivedCount)}
	},
	Scan: func(row pgx.Row) (*entity.Account, error) {
		var (
			a                     entity.Account
			total, sent, received int64
		)
		if err := row.Scan(&a.ID, &total, &sent, &received); err != nil {
			return nil, err
		}
		a.TransferCount = uint64(total)
		a.SentCount = uint64(sent)
		a.ReceivedCount = uint64(received)
		return &a, nil
	},
}

// TokenTable maps tokens
var TokenTable = Table[*entity.Token]{
	Name: "tokens",
	Columns: []Column{
		{Name: "id"},
		{Name: "contract"},
		{Name: "standard"},
		{Name: "name"},
		{Name: "symbol"},
		{Name: "decimals"},
		{Name: "asset_id", Numeric: true},
		{Name: "first_seen_block"},
	},
	Values: func(t *entity.Token) []any {
		var decimals *int16
		if t.Decimals != nil {
			d := int16(*t.Decimals)
			decimals = &d
		}
		return []any{
			t.ID,
			strings.ToLower(t.Contract.Hex()),
			string(t.Standard),
			t.Name,
			t.Symbol,
			decimals,
			numericParam(t.AssetID),
			int64(t.FirstSeenBlock),
		}
	},
	Scan: func(row pgx.Row) (*entity.Token, error) {
		var (
			t         entity.Token
			contract  string
			standard  string
			decimals  *int16
			assetID   *string
			firstSeen int64
		)
		if err := row.Scan(&t.ID, &contract, &standard, &t.Name, &t.Symbol, &decimals, &assetID, &firstSeen); err != nil {
			return nil, err
		}

		t.Contract = common.HexToAddress(contract)
		t.Standard = entity.ContractStandard(standard)
		if decimals != nil {
			d := uint8(*decimals)
			t.Decimals = &d
		}
		if assetID != nil {
			v, err := parseNumeric(*assetID)
			if err != nil {
				return nil, err
			}
			t.AssetID = v
		}
		t.FirstSeenBlock = uint64(firstSeen)
		return &t, nil
	},
}

// TransferTable maps transfers. Relations are not columns.
var TransferTable = Table[*entity.Transfer]{
	Name: "transfers",
	Columns: []Column{
		{Name: "id"},
		{Name: "block_number"},
		{Name: "tx_hash"},
		{Name: "log_index"},
		{Name: "from_id"},
		{Name: "to_id"},
		{Name: "token_id"},
		{Name: "amount", Numeric: true},
	},
	Values: func(t *entity.Transfer) []any {
		amount := numericParam(t.Amount)
		if amount == nil {
			amount = "0"
		}
		return []any{
			t.ID,
			int64(t.BlockNumber),
			t.TxHash.Hex(),
			int32(t.LogIndex),
			t.FromID,
			t.ToID,
			t.TokenID,
			amount,
		}
	},
	Scan: func(row pgx.Row) (*entity.Transfer, error) {
		var (
			t        entity.Transfer
			block    int64
			txHash   string
			logIndex int32
			amount   string
		)
		if err := row.Scan(&t.ID, &block, &txHash, &logIndex, &t.FromID, &t.ToID, &t.TokenID, &amount); err != nil {
			return nil, err
		}

		v, err := parseNumeric(amount)
		if err != nil {
			return nil, err
		}
		t.BlockNumber = uint64(block)
		t.TxHash = common.HexToHash(txHash)
		t.LogIndex = uint(logIndex)
		t.Amount = v
		return &t, nil
	},
}

// CheckpointTable maps checkpoints
var CheckpointTable = Table[*entity.Checkpoint]{
	Name:    "checkpoints",
	Columns: []Column{{Name: "id"}, {Name: "height"}},
	Values: func(c *entity.Checkpoint) []any {
		return []any{c.ID, int64(c.Height)}
	},
	Scan: func(row pgx.Row) (*entity.Checkpoint, error) {
		var (
			c      entity.Checkpoint
			height int64
		)
		if err := row.Scan(&c.ID, &height); err != nil {
			return nil, err
		}
		c.Height = uint64(height)
		return &c, nil
	},
}

// numericParam returns v as decimal text, or an untyped nil for SQL NULL
func numericParam(v *big.Int) any {
	if v == nil {
		return nil
	}
	return v.String()
}

func parseNumeric(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", s)
	}
	return v, nil
}
