package action

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Method describes one runtime method a controller may call: its ordered
// parameter names and the subset that is coerced to bool.
type Method struct {
	Name   string
	Params []string
	bools  map[string]bool
}

// Coerced reports whether param is normalized to a strict bool.
func (m Method) Coerced(param string) bool {
	return m.bools[param]
}

var boolParams = map[string]bool{
	"auto_escape":        true,
	"reject_add_request": true,
	"enable":             true,
	"is_dismiss":         true,
	"approve":            true,
	"block":              true,
	"no_cache":           true,
}

func method(name string, params ...string) Method {
	m := Method{Name: name, Params: params, bools: make(map[string]bool)}
	for _, p := range params {
		if boolParams[p] {
			m.bools[p] = true
		}
	}
	return m
}

var schema = buildSchema(
	method("sendPrivateMsg", "user_id", "message", "auto_escape"),
	method("sendGroupMsg", "group_id", "message", "auto_escape"),
	method("sendDiscussMsg", "discuss_id", "message", "auto_escape"),
	method("deleteMsg", "message_id"),
	method("getMsg", "message_id"),
	method("sendLike", "user_id", "times"),

	method("setGroupKick", "group_id", "user_id", "reject_add_request"),
	method("setGroupBan", "group_id", "user_id", "duration"),
	method("setGroupAnonymousBan", "group_id", "flag", "duration"),
	method("setGroupWholeBan", "group_id", "enable"),
	method("setGroupAdmin", "group_id", "user_id", "enable"),
	method("setGroupAnonymous", "group_id", "enable"),
	method("setGroupCard", "group_id", "user_id", "card"),
	method("setGroupName", "group_id", "group_name"),
	method("setGroupLeave", "group_id", "is_dismiss"),
	method("setGroupSpecialTitle", "group_id", "user_id", "special_title", "duration"),
	method("setFriendAddRequest", "flag", "approve", "remark", "block"),
	method("setGroupAddRequest", "flag", "approve", "reason", "block"),

	method("getLoginInfo"),
	method("getStrangerInfo", "user_id", "no_cache"),
	method("getFriendList"),
	method("getGroupInfo", "group_id", "no_cache"),
	method("getGroupList"),
	method("getGroupMemberInfo", "group_id", "user_id", "no_cache"),
	method("getGroupMemberList", "group_id", "no_cache"),
	method("getCookies", "domain"),
	method("getCsrfToken"),
	method("canSendImage"),
	method("canSendRecord"),
	method("getStatus"),
	method("getVersionInfo"),
	method("cleanCache"),
)

func buildSchema(methods ...Method) map[string]Method {
	out := make(map[string]Method, len(methods))
	for _, m := range methods {
		out[m.Name] = m
	}
	return out
}

// Lookup returns the schema entry for a runtime method identifier.
func Lookup(name string) (Method, bool) {
	m, ok := schema[name]
	return m, ok
}

// MethodName converts a snake_case action to its camelCase runtime method
// identifier: "send_group_msg" becomes "sendGroupMsg".
func MethodName(action string) string {
	parts := strings.Split(action, "_")
	title := cases.Title(language.Und, cases.NoLower)

	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		b.WriteString(title.String(p))
	}
	return b.String()
}
