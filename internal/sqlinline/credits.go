package sqlinline

const QDeductCredits = `--sql 7d3a9c52-e0b1-4f6e-a8d4-3c2f1b5e9a70
update credit_balances
set balance = balance - $2::int,
    updated_at = now()
where user_id = $1::text
  and balance >= $2::int;
`

const QGrantCredits = `--sql 1e8b4f2d-9a6c-4c07-b3e1-5d7a0f2c8b94
insert into credit_balances (user_id, balance, created_at, updated_at)
values ($1::text, $2::int, now(), now())
on conflict (user_id) do update set
  balance = credit_balances.balance + excluded.balance,
  updated_at = now();
`

const QInsertCreditEntry = `--sql a4c7e1f9-2b3d-4e85-9f60-8d1b3a6c5e27
insert into credit_ledger (id, user_id, delta, reason, created_at)
values (gen_random_uuid(), $1::text, $2::int, $3::text, now());
`

const QSelectCreditBalance = `--sql 6b9d2e4a-8f1c-4a73-b5e0-2c4f7a9d1e38
select balance
from credit_balances
where user_id = $1::text
limit 1;
`
