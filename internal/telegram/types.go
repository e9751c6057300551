package telegram

import "fmt"

// Command представляет команду бота
type Command string

const (
	CmdStart         Command = "start"
	CmdHelp          Command = "help"
	CmdPlans         Command = "plans"
	CmdBuy           Command = "buy"
	CmdStatus        Command = "status"
	CmdRef           Command = "ref"
	CmdImage         Command = "image"
	CmdCancel        Command = "cancel"
	CmdCheckPayments Command = "checkpayments"
	CmdGrant         Command = "grant"
)

func (c Command) String() string {
	return string(c)
}

func (c Command) IsValid() bool {
	switch c {
	case CmdStart, CmdHelp, CmdPlans, CmdBuy, CmdStatus, CmdRef,
		CmdImage, CmdCancel, CmdCheckPayments, CmdGrant:
		return true
	}
	return false
}

func (c Command) IsAdminOnly() bool {
	switch c {
	case CmdCheckPayments, CmdGrant:
		return true
	}
	return false
}

// CallbackPrefix представляет префиксы callback данных
type CallbackPrefix string

const (
	CallbackBuyPlan CallbackPrefix = "buy_plan_"
)

func (c CallbackPrefix) String() string {
	return string(c)
}

func (c CallbackPrefix) WithID(id interface{}) string {
	return string(c) + fmt.Sprintf("%v", id)
}
