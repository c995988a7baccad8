package rbac

// Default policy for the training platform. Access to an exam's audience is
// enforced separately by the exam model; this table gates operations.
var RolePermissions = map[string][]string{
	"employee": {
		"exam:list",
		"exam:view",
		"attempt:submit",
		"attempt:view-own",
	},
	"manager": {
		"exam:list",
		"exam:view",
		"attempt:submit",
		"attempt:view-own",
		"attempt:view-team",
		"report:view",
	},
	"admin": {
		"*", // everything
	},
}
